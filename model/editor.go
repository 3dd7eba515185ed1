package model

import "github.com/Harikrishna-AL/MedX/canvas"

// Response 通用成功响应
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// DetectRequest 分割服务请求，坐标均为原图像素空间
type DetectRequest struct {
	ImagePath      string      `json:"image_path"`
	PositivePoints [][]float64 `json:"positive_points"`
	NegativePoints [][]float64 `json:"negative_points"`
	Threshold      float64     `json:"threshold"`
}

// MaskReference 分割服务返回的掩码引用
type MaskReference struct {
	Name         string `json:"name"`
	Subfolder    string `json:"subfolder,omitempty"`
	Type         string `json:"type,omitempty"`
	MaskFilename string `json:"mask_filename,omitempty"`
}

// UploadAck 融合服务上传前景后的确认，success 字段为字符串
type UploadAck struct {
	Success string `json:"success"`
	Message string `json:"message"`
}

// ImageRecord 图库中已保存的结果
type ImageRecord struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Username string `json:"username,omitempty"`
	Content  string `json:"content"`
	Type     string `json:"type"`
}

// ResultRecord 缓存中的结果图像
type ResultRecord struct {
	MD5       string `json:"md5"`
	Category  string `json:"category"`
	Image     []byte `json:"image"`
	Timestamp int64  `json:"timestamp"`
}

// SessionSnapshot 会话状态视图
type SessionSnapshot struct {
	ID            string                 `json:"id"`
	Workflow      string                 `json:"workflow"`
	ImageName     string                 `json:"image_name"`
	NaturalSize   canvas.Size            `json:"natural_size"`
	ContainerSize canvas.Size            `json:"container_size"`
	DisplaySize   canvas.Size            `json:"display_size"`
	Points        []canvas.Point         `json:"points"`
	Overlay       canvas.OverlaySnapshot `json:"overlay"`
	Mask          *MaskReference         `json:"mask,omitempty"`
	ResultURL     string                 `json:"result_url,omitempty"`
	ResultMD5     string                 `json:"result_md5,omitempty"`
	InFlight      bool                   `json:"in_flight"`
	Preprocessing bool                   `json:"preprocessing"`
}

// PointRequest 显示空间中的点击位置
type PointRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PointerRequest 叠加对象的指针事件，type 为 down/move/up
type PointerRequest struct {
	Type string  `json:"type" binding:"required,oneof=down move up"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

type ViewportRequest struct {
	ContainerWidth  float64 `json:"container_width" binding:"gte=0"`
	ContainerHeight float64 `json:"container_height" binding:"gte=0"`
}

type DetectParams struct {
	Threshold *float64 `json:"threshold" binding:"omitempty,gte=0,lte=1"`
}
