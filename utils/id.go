package utils

import (
	"sync/atomic"
	"time"
)

var lastID atomic.Int64

// GenerateID 生成基于时间戳的ID，并发调用时保持严格递增
func GenerateID() int64 {
	for {
		last := lastID.Load()
		id := time.Now().UnixNano()
		if id <= last {
			id = last + 1
		}
		if lastID.CompareAndSwap(last, id) {
			return id
		}
	}
}
