package canvas

// PointCollection 按点击顺序保存的图像空间坐标，只支持追加与撤销最后一个
type PointCollection struct {
	points []Point
}

func (c *PointCollection) Append(p Point) {
	c.points = append(c.points, p)
}

// RemoveLast 撤销最后一个点，集合为空时什么也不做
func (c *PointCollection) RemoveLast() (Point, bool) {
	if len(c.points) == 0 {
		return Point{}, false
	}
	last := c.points[len(c.points)-1]
	c.points = c.points[:len(c.points)-1]
	return last, true
}

func (c *PointCollection) Clear() {
	c.points = nil
}

func (c *PointCollection) Len() int {
	return len(c.points)
}

// Points 返回副本
func (c *PointCollection) Points() []Point {
	out := make([]Point, len(c.points))
	copy(out, c.points)
	return out
}

// Pairs 以 [[x, y], ...] 形式输出，用于分割请求
func (c *PointCollection) Pairs() [][]float64 {
	out := make([][]float64, 0, len(c.points))
	for _, p := range c.points {
		out = append(out, []float64{p.X, p.Y})
	}
	return out
}
