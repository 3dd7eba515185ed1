package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const bearerKey = "bearer"

// Bearer 取出 Authorization 中的凭证供转发使用，不做任何校验
func Bearer() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
			c.Set(bearerKey, strings.TrimSpace(auth[7:]))
		}
		c.Next()
	}
}

// BearerFrom 没有凭证时返回空字符串
func BearerFrom(c *gin.Context) string {
	return c.GetString(bearerKey)
}
