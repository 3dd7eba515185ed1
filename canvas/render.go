package canvas

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"
	xdraw "golang.org/x/image/draw"
)

var (
	selectionColor = color.NRGBA{R: 0, G: 153, B: 255, A: 255}
	handleFill     = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	pointFill      = color.NRGBA{R: 0, G: 255, B: 0, A: 255}
	pointBorder    = color.NRGBA{R: 0, G: 0, B: 0, A: 255}
)

// RenderOptions 选中框手柄与点击点标记的尺寸
type RenderOptions struct {
	HandleMarkerSize  int
	PointMarkerRadius int
}

func DefaultRenderOptions() RenderOptions {
	return RenderOptions{HandleMarkerSize: 8, PointMarkerRadius: 4}
}

// RenderBackground 将背景图缩放到显示尺寸。尺寸为零时返回空图像。
func RenderBackground(bg image.Image, display Size) *image.NRGBA {
	w, h := display.Pixels()
	if bg == nil || w <= 0 || h <= 0 {
		return image.NewNRGBA(image.Rect(0, 0, 0, 0))
	}
	return imaging.Resize(bg, w, h, imaging.Linear)
}

// RenderComposite 每次都从背景开始完整重绘：背景、对象、选中框与四角手柄
func RenderComposite(bg image.Image, display Size, ov *Overlay, opts RenderOptions) *image.NRGBA {
	dst := RenderBackground(bg, display)
	if ov == nil || !ov.Placed() {
		return dst
	}

	drawOverlay(dst, ov)

	if ov.selected {
		rect := overlayRect(ov)
		if !rect.Empty() {
			drawRect(dst, rect, selectionColor)
			for _, c := range []image.Point{rect.Min, image.Pt(rect.Max.X, rect.Min.Y), rect.Max, image.Pt(rect.Min.X, rect.Max.Y)} {
				drawHandle(dst, c, opts.HandleMarkerSize)
			}
		}
	}
	return dst
}

// RenderOverlayLayer 仅包含对象的透明图层，用于融合前的前景快照
func RenderOverlayLayer(display Size, ov *Overlay) *image.NRGBA {
	w, h := display.Pixels()
	if w <= 0 || h <= 0 {
		return image.NewNRGBA(image.Rect(0, 0, 0, 0))
	}
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	if ov != nil && ov.Placed() {
		drawOverlay(dst, ov)
	}
	return dst
}

// RenderPoints 背景加上按当前缩放重新投影的点击点
func RenderPoints(bg image.Image, display Size, points []Point, opts RenderOptions) *image.NRGBA {
	dst := RenderBackground(bg, display)
	m, err := NewMapper(SizeOf(bg), display)
	if err != nil {
		return dst
	}
	for _, p := range points {
		d := m.ToDisplay(p)
		pt := image.Pt(int(d.X+0.5), int(d.Y+0.5))
		drawFilledCircle(dst, pt, opts.PointMarkerRadius+1, pointBorder)
		drawFilledCircle(dst, pt, opts.PointMarkerRadius, pointFill)
	}
	return dst
}

func overlayRect(ov *Overlay) image.Rectangle {
	w, h := ov.size.Pixels()
	x, y := int(ov.position.X+0.5), int(ov.position.Y+0.5)
	if w <= 0 || h <= 0 {
		return image.Rectangle{}
	}
	return image.Rect(x, y, x+w, y+h)
}

// drawOverlay 宽或高不为正时不绘制。只采样落在画布内的部分，开销与对象尺寸无关。
func drawOverlay(dst *image.NRGBA, ov *Overlay) {
	rect := overlayRect(ov)
	if rect.Empty() || rect.Intersect(dst.Bounds()).Empty() {
		return
	}
	xdraw.ApproxBiLinear.Scale(dst, rect, ov.img, ov.img.Bounds(), xdraw.Over, nil)
}

func drawRect(img *image.NRGBA, r image.Rectangle, c color.NRGBA) {
	drawHLine(img, r.Min.Y, r.Min.X, r.Max.X, c)
	drawHLine(img, r.Max.Y-1, r.Min.X, r.Max.X, c)
	drawVLine(img, r.Min.X, r.Min.Y, r.Max.Y, c)
	drawVLine(img, r.Max.X-1, r.Min.Y, r.Max.Y, c)
}

func drawHandle(img *image.NRGBA, center image.Point, size int) {
	if size <= 0 {
		return
	}
	hs := size / 2
	r := image.Rect(center.X-hs, center.Y-hs, center.X-hs+size, center.Y-hs+size)
	draw.Draw(img, r.Intersect(img.Bounds()), image.NewUniform(handleFill), image.Point{}, draw.Src)
	drawRect(img, r, selectionColor)
}

func drawFilledCircle(img *image.NRGBA, c image.Point, r int, col color.NRGBA) {
	b := img.Bounds()
	for y := -r; y <= r; y++ {
		for x := -r; x <= r; x++ {
			if x*x+y*y > r*r {
				continue
			}
			p := image.Pt(c.X+x, c.Y+y)
			if p.In(b) {
				img.SetNRGBA(p.X, p.Y, col)
			}
		}
	}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	b := img.Bounds()
	if y < b.Min.Y || y >= b.Max.Y {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	x0, x1 = max(x0, b.Min.X), min(x1, b.Max.X)
	for x := x0; x < x1; x++ {
		img.SetNRGBA(x, y, c)
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	b := img.Bounds()
	if x < b.Min.X || x >= b.Max.X {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	y0, y1 = max(y0, b.Min.Y), min(y1, b.Max.Y)
	for y := y0; y < y1; y++ {
		img.SetNRGBA(x, y, c)
	}
}
