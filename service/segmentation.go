package service

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/Harikrishna-AL/MedX/model"
)

// SegmentationClient 分割服务：上传原图、按点检测掩码、执行去除工作流
type SegmentationClient struct {
	remote
}

func NewSegmentationClient(baseURL string, timeout time.Duration) *SegmentationClient {
	return &SegmentationClient{remote: newRemote(baseURL, timeout)}
}

// UploadSource 将原图放入分割服务的输入目录，返回服务端文件名
func (c *SegmentationClient) UploadSource(ctx context.Context, name string, data []byte) (string, error) {
	body, err := c.postFile(ctx, "/upload/image", nil, "image", name, data, "")
	if err != nil {
		return "", err
	}

	var ref model.MaskReference
	if err := decodeJSON(body, &ref); err != nil {
		return "", err
	}
	if ref.Name == "" {
		return "", fmt.Errorf("%w: upload response has no name", ErrRejected)
	}
	return ref.Name, nil
}

// Detect 提交图像空间中的点击点，返回掩码引用
func (c *SegmentationClient) Detect(ctx context.Context, req model.DetectRequest) (*model.MaskReference, error) {
	if req.NegativePoints == nil {
		req.NegativePoints = [][]float64{}
	}

	body, err := c.postJSON(ctx, "/sam/detect", nil, req, "")
	if err != nil {
		return nil, err
	}

	var ref model.MaskReference
	if err := decodeJSON(body, &ref); err != nil {
		return nil, err
	}
	if ref.Name == "" {
		return nil, fmt.Errorf("%w: detect response has no mask reference", ErrRejected)
	}
	return &ref, nil
}

// Generate 以掩码引用为输入执行工作流，返回结果图像
func (c *SegmentationClient) Generate(ctx context.Context, wf *Workflow, imagePath string) ([]byte, error) {
	payload, err := wf.WithImage(imagePath)
	if err != nil {
		return nil, err
	}

	query := url.Values{"image_path": {imagePath}}
	body, err := c.postJSON(ctx, "/output", query, payload, "")
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrRejected)
	}
	return body, nil
}

// FetchMask 读取检测生成的掩码图像
func (c *SegmentationClient) FetchMask(ctx context.Context, filename string) ([]byte, error) {
	query := url.Values{"filename": {filename}, "type": {"output"}}
	return c.get(ctx, "/view", query, "")
}
