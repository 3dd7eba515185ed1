package service

import (
	"context"
	"fmt"
	"time"
)

// PreprocessClient 去背景服务
type PreprocessClient struct {
	remote
}

func NewPreprocessClient(baseURL string, timeout time.Duration) *PreprocessClient {
	return &PreprocessClient{remote: newRemote(baseURL, timeout)}
}

// RemoveBackground 返回去除背景后的对象图像
func (c *PreprocessClient) RemoveBackground(ctx context.Context, name string, data []byte) ([]byte, error) {
	body, err := c.postFile(ctx, "/removebackground", nil, "seg_image", name, data, "")
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrRejected)
	}
	return body, nil
}
