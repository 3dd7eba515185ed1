package service

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"github.com/Harikrishna-AL/MedX/model"
	"github.com/Harikrishna-AL/MedX/utils"
	"go.uber.org/zap"
)

// 结果分类，与图库筛选一致
const (
	CategoryRemove = "remove"
	CategoryAdd    = "add"
)

// PersistenceClient 结果保存服务，凭证原样转发
type PersistenceClient struct {
	remote
}

func NewPersistenceClient(baseURL string, timeout time.Duration) *PersistenceClient {
	return &PersistenceClient{remote: newRemote(baseURL, timeout)}
}

// Save 以 category 分类保存结果图像。只有状态码决定成败，响应体不是记录时返回空记录。
func (c *PersistenceClient) Save(ctx context.Context, bearer, category, filename string, data []byte) (*model.ImageRecord, error) {
	query := url.Values{"type": {category}}
	body, err := c.postFile(ctx, "/upload-image", query, "file", filename, data, bearer)
	if err != nil {
		return nil, err
	}

	rec := &model.ImageRecord{Filename: filename, Type: category}
	if err := json.Unmarshal(body, rec); err != nil {
		utils.Logger.Debug("persistence response is not a record",
			zap.String("filename", filename),
			zap.Int("size", len(body)),
			zap.Error(err))
	}
	return rec, nil
}

// GalleryClient 已保存结果的列表服务
type GalleryClient struct {
	remote
}

func NewGalleryClient(baseURL string, timeout time.Duration) *GalleryClient {
	return &GalleryClient{remote: newRemote(baseURL, timeout)}
}

// List 返回当前凭证下的全部结果，category 非空时按分类过滤
func (c *GalleryClient) List(ctx context.Context, bearer, category string) ([]model.ImageRecord, error) {
	body, err := c.get(ctx, "/images", nil, bearer)
	if err != nil {
		return nil, err
	}

	var records []model.ImageRecord
	if err := decodeJSON(body, &records); err != nil {
		return nil, err
	}
	if category == "" {
		return records, nil
	}

	filtered := make([]model.ImageRecord, 0, len(records))
	for _, r := range records {
		if r.Type == category {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}
