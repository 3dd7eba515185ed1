package canvas

import "image"

// State 一个视图的画布：源图像、标识名以及当前显示尺寸
type State struct {
	Image     image.Image
	Name      string
	Container Size
	Display   Size
}

// NewState 上传图像后按容器尺寸适配
func NewState(img image.Image, name string, container Size) *State {
	s := &State{Image: img, Name: name}
	s.Refit(container)
	return s
}

// Refit 容器尺寸变化后重新适配
func (s *State) Refit(container Size) Size {
	s.Container = container
	s.Display = Fit(SizeOf(s.Image), container)
	return s.Display
}

func (s *State) Loaded() bool {
	return s != nil && s.Image != nil && !SizeOf(s.Image).Empty()
}

func (s *State) Natural() Size {
	return SizeOf(s.Image)
}

// Mapper 图像未加载或显示尺寸为零时返回 ErrNotReady
func (s *State) Mapper() (Mapper, error) {
	if !s.Loaded() {
		return Mapper{}, ErrNotReady
	}
	return NewMapper(s.Natural(), s.Display)
}
