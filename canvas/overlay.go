package canvas

import (
	"image"
	"math"
)

// OverlayMode 叠加对象状态机的状态
type OverlayMode string

const (
	ModeIdle       OverlayMode = "idle"
	ModeUnselected OverlayMode = "placed-unselected"
	ModeSelected   OverlayMode = "placed-selected"
	ModeDragging   OverlayMode = "dragging"
	ModeResizing   OverlayMode = "resizing"
)

// OverlayOptions 叠加对象的初始摆放与缩放手柄参数，单位为显示像素
type OverlayOptions struct {
	Origin     Point
	Scale      float64
	HandleSize float64
}

// DefaultOverlayOptions 对象放在 (10,10)，按自然尺寸的一半显示
func DefaultOverlayOptions() OverlayOptions {
	return OverlayOptions{
		Origin:     Point{X: 10, Y: 10},
		Scale:      0.5,
		HandleSize: 10,
	}
}

// Overlay 背景画布上可移动、可缩放的对象。位置与尺寸均为显示空间。
// dragging 与 resizing 至多一个为真，且都意味着 selected。
type Overlay struct {
	opts OverlayOptions

	img      image.Image
	position Point
	size     Size

	selected    bool
	dragging    bool
	resizing    bool
	hoverHandle bool

	// 按下时指针与对象原点（拖拽）或右下角（缩放）的偏移
	grabOffset Point
}

// OverlaySnapshot 叠加对象的可序列化视图
type OverlaySnapshot struct {
	Mode                 OverlayMode `json:"mode"`
	Position             Point       `json:"position"`
	Size                 Size        `json:"size"`
	Selected             bool        `json:"selected"`
	Dragging             bool        `json:"dragging"`
	Resizing             bool        `json:"resizing"`
	HoveringResizeHandle bool        `json:"hovering_resize_handle"`
	GrabOffset           Point       `json:"grab_offset"`
}

func NewOverlay(opts OverlayOptions) *Overlay {
	if opts.Scale <= 0 {
		opts.Scale = 0.5
	}
	if opts.HandleSize <= 0 {
		opts.HandleSize = 10
	}
	return &Overlay{opts: opts}
}

// Place 对象图像加载完成后进入 placed-unselected
func (o *Overlay) Place(img image.Image) {
	natural := SizeOf(img)
	o.img = img
	o.position = o.opts.Origin
	o.size = Size{Width: natural.Width * o.opts.Scale, Height: natural.Height * o.opts.Scale}
	o.selected = false
	o.dragging = false
	o.resizing = false
	o.hoverHandle = false
	o.grabOffset = Point{}
}

// Reset 回到 idle
func (o *Overlay) Reset() {
	*o = Overlay{opts: o.opts}
}

func (o *Overlay) Placed() bool { return o.img != nil }

func (o *Overlay) Image() image.Image { return o.img }

func (o *Overlay) Position() Point { return o.position }

func (o *Overlay) Size() Size { return o.size }

func (o *Overlay) HandleSize() float64 { return o.opts.HandleSize }

func (o *Overlay) Mode() OverlayMode {
	switch {
	case o.img == nil:
		return ModeIdle
	case o.dragging:
		return ModeDragging
	case o.resizing:
		return ModeResizing
	case o.selected:
		return ModeSelected
	default:
		return ModeUnselected
	}
}

func (o *Overlay) Snapshot() OverlaySnapshot {
	return OverlaySnapshot{
		Mode:                 o.Mode(),
		Position:             o.position,
		Size:                 o.size,
		Selected:             o.selected,
		Dragging:             o.dragging,
		Resizing:             o.resizing,
		HoveringResizeHandle: o.hoverHandle,
		GrabOffset:           o.grabOffset,
	}
}

// PointerDown 依次命中测试缩放手柄、对象矩形，未命中则取消选中
func (o *Overlay) PointerDown(p Point) OverlayMode {
	if o.img == nil {
		return ModeIdle
	}

	switch {
	case o.inHandle(p):
		o.selected = true
		o.resizing = true
		o.dragging = false
		o.grabOffset = p.Sub(o.corner())
	case o.inBounds(p):
		o.selected = true
		o.dragging = true
		o.resizing = false
		o.grabOffset = p.Sub(o.position)
	default:
		o.selected = false
		o.dragging = false
		o.resizing = false
	}
	return o.Mode()
}

// PointerMove 拖拽时不限制在画布内；缩放时允许出现负尺寸
func (o *Overlay) PointerMove(p Point) OverlayMode {
	if o.img == nil {
		return ModeIdle
	}

	switch {
	case o.dragging:
		o.position = p.Sub(o.grabOffset)
	case o.resizing:
		d := p.Sub(o.position)
		o.size = Size{Width: d.X, Height: d.Y}
	default:
		o.hoverHandle = o.inHandle(p)
	}
	return o.Mode()
}

func (o *Overlay) PointerUp() OverlayMode {
	if o.dragging || o.resizing {
		o.dragging = false
		o.resizing = false
		o.selected = true
	}
	return o.Mode()
}

func (o *Overlay) corner() Point {
	return Point{X: o.position.X + o.size.Width, Y: o.position.Y + o.size.Height}
}

func (o *Overlay) inHandle(p Point) bool {
	c := o.corner()
	half := o.opts.HandleSize / 2
	return math.Abs(p.X-c.X) <= half && math.Abs(p.Y-c.Y) <= half
}

func (o *Overlay) inBounds(p Point) bool {
	c := o.corner()
	minX, maxX := math.Min(o.position.X, c.X), math.Max(o.position.X, c.X)
	minY, maxY := math.Min(o.position.Y, c.Y), math.Max(o.position.Y, c.Y)
	return p.X >= minX && p.X <= maxX && p.Y >= minY && p.Y <= maxY
}
