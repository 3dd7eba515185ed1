package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Harikrishna-AL/MedX/model"
)

// BlendClient 泊松融合服务，先上传前景层再提交背景
type BlendClient struct {
	remote
}

func NewBlendClient(baseURL string, timeout time.Duration) *BlendClient {
	return &BlendClient{remote: newRemote(baseURL, timeout)}
}

// UploadForeground 上传只含叠加对象的透明图层
func (c *BlendClient) UploadForeground(ctx context.Context, png []byte) error {
	body, err := c.postFile(ctx, "/blend/upload", nil, "src_image", "src_image.png", png, "")
	if err != nil {
		return err
	}

	var ack model.UploadAck
	if err := decodeJSON(body, &ack); err != nil {
		return err
	}
	if ack.Success != "true" {
		return fmt.Errorf("%w: %s", ErrRejected, ack.Message)
	}
	return nil
}

// Blend 提交背景画布，返回融合结果
func (c *BlendClient) Blend(ctx context.Context, png []byte) ([]byte, error) {
	body, err := c.postFile(ctx, "/blend", nil, "target_image", "target_image.png", png, "")
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrRejected)
	}
	return body, nil
}
