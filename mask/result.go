package mask

import "image"

// Result 分割模型对一帧的输出，标签图或逐类概率图
type Result interface {
	Size() image.Point
}

// LabelMap 每个像素一个类别索引，索引对应 Labels
type LabelMap struct {
	Width   int
	Height  int
	Labels  []string
	Classes []int
}

func (m *LabelMap) Size() image.Point {
	return image.Pt(m.Width, m.Height)
}

// ProbabilityMap 每个类别一个概率平面，Planes[c][y*Width+x]
type ProbabilityMap struct {
	Width  int
	Height int
	Labels []string
	Planes [][]float64
}

func (m *ProbabilityMap) Size() image.Point {
	return image.Pt(m.Width, m.Height)
}
