// Package mask 基于 OpenCV 生成分割掩码预览：掩码外区域压暗，掩码内保持原样。
package mask

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// DimFactor 掩码外区域的亮度系数
const DimFactor = 0.3

var ErrEmptyImage = errors.New("mask: empty image")

// Processor 负责处理图像掩码
type Processor struct {
	dim float32
}

func NewProcessor() *Processor {
	return &Processor{dim: DimFactor}
}

// Preview 返回 PNG 编码的预览图。keepLargest 为真时只保留最大连通区域。
func (p *Processor) Preview(original, maskData []byte, keepLargest bool) ([]byte, error) {
	img, err := gocv.IMDecode(original, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	defer img.Close()
	if img.Empty() {
		return nil, ErrEmptyImage
	}

	raw, err := gocv.IMDecode(maskData, gocv.IMReadGrayScale)
	if err != nil {
		return nil, fmt.Errorf("failed to decode mask: %w", err)
	}
	defer raw.Close()
	if raw.Empty() {
		return nil, ErrEmptyImage
	}

	binary := p.Binarize(&raw, image.Pt(img.Cols(), img.Rows()))
	defer binary.Close()

	if keepLargest {
		largest := p.KeepLargest(&binary)
		defer largest.Close()
		largest.CopyTo(&binary)
	}

	dimmed := gocv.NewMat()
	defer dimmed.Close()
	img.ConvertToWithParams(&dimmed, gocv.MatTypeCV8UC3, p.dim, 0)
	img.CopyToWithMask(&dimmed, binary)

	buf, err := gocv.IMEncode(gocv.PNGFileExt, dimmed)
	if err != nil {
		return nil, fmt.Errorf("failed to encode preview: %w", err)
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

// Binarize 缩放到原图尺寸并二值化
func (p *Processor) Binarize(mask *gocv.Mat, size image.Point) gocv.Mat {
	resized := gocv.NewMat()
	defer resized.Close()
	if mask.Cols() != size.X || mask.Rows() != size.Y {
		gocv.Resize(*mask, &resized, size, 0, 0, gocv.InterpolationNearestNeighbor)
	} else {
		mask.CopyTo(&resized)
	}

	binary := gocv.NewMat()
	gocv.Threshold(resized, &binary, 127, 255, gocv.ThresholdBinary)
	return binary
}

// KeepLargest 保留掩码中最大的连通区域
func (p *Processor) KeepLargest(mask *gocv.Mat) gocv.Mat {
	contours := gocv.FindContours(*mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	if contours.Size() == 0 {
		return mask.Clone()
	}

	maxArea := 0.0
	maxIndex := 0
	for i := 0; i < contours.Size(); i++ {
		area := gocv.ContourArea(contours.At(i))
		if area > maxArea {
			maxArea = area
			maxIndex = i
		}
	}

	largest := gocv.Zeros(mask.Rows(), mask.Cols(), gocv.MatTypeCV8U)
	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	gocv.DrawContours(&largest, contours, maxIndex, white, -1)

	return largest
}
