package handler

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/Harikrishna-AL/MedX/config"
	"github.com/Harikrishna-AL/MedX/model"
	"github.com/Harikrishna-AL/MedX/utils"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// upload 已校验的上传文件
type upload struct {
	Filename string
	Path     string
	MD5      string
	Data     []byte
}

// uploader 按上传配置校验并读取图片
type uploader struct {
	cfg *config.UploadConfig
	// read 为空时使用 os.ReadFile
	read func(name string) ([]byte, error)
}

// receive 校验大小与类型。save 为真时写入上传目录，否则只读入内存。
// 校验失败时已经写好响应，返回 false。
func (u uploader) receive(c *gin.Context, field string, save bool) (*upload, bool) {
	file, err := c.FormFile(field)
	if err != nil {
		utils.Logger.Error("failed to get uploaded file", zap.String("field", field), zap.Error(err))
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: "请上传图片文件",
			Error:   err.Error(),
		})
		return nil, false
	}

	// 验证文件大小
	if file.Size > u.cfg.MaxSize {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: fmt.Sprintf("文件大小超过限制 (%d MB)", u.cfg.MaxSize/(1024*1024)),
		})
		return nil, false
	}

	// 验证文件类型
	contentType := file.Header.Get("Content-Type")
	if !u.isAllowedType(contentType) {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{
			Success: false,
			Message: "不支持的文件类型，仅支持 JPEG/PNG/WebP",
		})
		return nil, false
	}

	// 生成文件名
	ext := filepath.Ext(file.Filename)
	filename := fmt.Sprintf("%d%s", utils.GenerateID(), ext)

	var up *upload
	if save {
		up, err = u.saveFile(c, file, filename)
	} else {
		up, err = readFile(file, filename)
	}
	if err != nil {
		utils.Logger.Error("failed to read upload", zap.Error(err))
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{
			Success: false,
			Message: "保存文件失败",
			Error:   err.Error(),
		})
		return nil, false
	}

	utils.Logger.Info("file uploaded",
		zap.String("field", field),
		zap.String("filename", filename),
		zap.String("md5", up.MD5),
		zap.Int64("size", file.Size))

	return up, true
}

// saveFile 写入上传目录，后续任一步失败都会删除已写入的文件
func (u uploader) saveFile(c *gin.Context, file *multipart.FileHeader, filename string) (up *upload, err error) {
	savePath := filepath.Join(u.cfg.UploadDir, filename)
	if err := c.SaveUploadedFile(file, savePath); err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			removeFile(savePath)
		}
	}()

	md5, err := utils.FileMD5(savePath)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate md5: %w", err)
	}

	read := u.read
	if read == nil {
		read = os.ReadFile
	}
	data, err := read(savePath)
	if err != nil {
		return nil, err
	}

	return &upload{Filename: filename, Path: savePath, MD5: md5, Data: data}, nil
}

func readFile(file *multipart.FileHeader, filename string) (*upload, error) {
	f, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return &upload{Filename: filename, MD5: utils.BytesMD5(data), Data: data}, nil
}

func (u uploader) isAllowedType(contentType string) bool {
	for _, allowed := range u.cfg.AllowedTypes {
		if strings.EqualFold(contentType, allowed) {
			return true
		}
	}
	return false
}
