// Package canvas 实现编辑画布的几何逻辑：视口适配、显示坐标与图像坐标互转、
// 点击点记录以及叠加对象的拖拽/缩放状态机。
package canvas

import (
	"errors"
	"image"
	"math"
)

// ErrNotReady 图像尚未加载或画布尚未布局时无法进行坐标换算
var ErrNotReady = errors.New("canvas: image not loaded")

// Point 二维坐标，图像空间与显示空间共用此类型，调用方负责区分
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) Add(q Point) Point { return Point{X: p.X + q.X, Y: p.Y + q.Y} }
func (p Point) Sub(q Point) Point { return Point{X: p.X - q.X, Y: p.Y - q.Y} }

// Size 像素尺寸
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// SizeOf 返回图像的自然尺寸
func SizeOf(img image.Image) Size {
	if img == nil {
		return Size{}
	}
	b := img.Bounds()
	return Size{Width: float64(b.Dx()), Height: float64(b.Dy())}
}

// Empty 任一维度不为正即视为空
func (s Size) Empty() bool {
	return s.Width <= 0 || s.Height <= 0
}

// Pixels 四舍五入为整数像素
func (s Size) Pixels() (int, int) {
	return int(math.Round(s.Width)), int(math.Round(s.Height))
}

// Fit 计算保持宽高比且完整放入容器的最大显示尺寸。
// 容器尚未布局（尺寸为零）时返回零尺寸，调用方在容器就绪后重新计算。
func Fit(img, container Size) Size {
	if img.Empty() || container.Empty() {
		return Size{}
	}

	aspect := img.Width / img.Height
	if container.Width/container.Height > aspect {
		return Size{Width: container.Height * aspect, Height: container.Height}
	}
	return Size{Width: container.Width, Height: container.Width / aspect}
}

// Mapper 在显示空间与原图像素空间之间换算
type Mapper struct {
	scaleX float64
	scaleY float64
}

// NewMapper 根据原图尺寸与显示尺寸创建换算器
func NewMapper(img, display Size) (Mapper, error) {
	if img.Empty() || display.Empty() {
		return Mapper{}, ErrNotReady
	}
	return Mapper{
		scaleX: img.Width / display.Width,
		scaleY: img.Height / display.Height,
	}, nil
}

// Scale 返回 image/display 的缩放系数
func (m Mapper) Scale() (float64, float64) {
	return m.scaleX, m.scaleY
}

// ToImage 将相对画布左上角的显示坐标转换为原图坐标
func (m Mapper) ToImage(p Point) Point {
	return Point{X: p.X * m.scaleX, Y: p.Y * m.scaleY}
}

// ToDisplay 将原图坐标投影到当前显示尺寸
func (m Mapper) ToDisplay(p Point) Point {
	return Point{X: p.X / m.scaleX, Y: p.Y / m.scaleY}
}
