package mask

import (
	"fmt"
	"image"

	"github.com/chaos-io/bgblend/raster"
)

// Extract 把模型输出转换成单通道前景置信度图
//
//	标签图: 目标类别为 1，其余为 0
//	概率图: 目标类别概率之和，截断到 [0,1]
func Extract(res Result, targets LabelSet, frameSize image.Point) (*raster.Grid, error) {
	if res == nil {
		return nil, fmt.Errorf("extract: nil segmentation result")
	}
	if err := raster.CheckSize("segmentation result", frameSize, res.Size()); err != nil {
		return nil, err
	}

	switch r := res.(type) {
	case *LabelMap:
		return extractLabels(r, targets)
	case *ProbabilityMap:
		return extractProbabilities(r, targets)
	default:
		return nil, fmt.Errorf("extract: unsupported segmentation result %T", res)
	}
}

func extractLabels(m *LabelMap, targets LabelSet) (*raster.Grid, error) {
	n := m.Width * m.Height
	if len(m.Classes) != n {
		return nil, fmt.Errorf("label map has %d cells for %dx%d: %w", len(m.Classes), m.Width, m.Height, raster.ErrDimensionMismatch)
	}

	selected := targets.selected(m.Labels)
	out := raster.NewGrid(m.Width, m.Height)
	for i, c := range m.Classes {
		// 标签表之外的类别索引按背景处理
		if c >= 0 && c < len(selected) && selected[c] {
			out.Pix[i] = 1
		}
	}
	return out, nil
}

func extractProbabilities(m *ProbabilityMap, targets LabelSet) (*raster.Grid, error) {
	n := m.Width * m.Height
	if len(m.Planes) != len(m.Labels) {
		return nil, fmt.Errorf("probability map has %d planes for %d labels", len(m.Planes), len(m.Labels))
	}

	out := raster.NewGrid(m.Width, m.Height)
	for c, use := range targets.selected(m.Labels) {
		if !use {
			continue
		}
		plane := m.Planes[c]
		if len(plane) != n {
			return nil, fmt.Errorf("plane %q has %d cells for %dx%d: %w", m.Labels[c], len(plane), m.Width, m.Height, raster.ErrDimensionMismatch)
		}
		for i, p := range plane {
			out.Pix[i] += raster.Clamp01(p)
		}
	}
	for i, v := range out.Pix {
		out.Pix[i] = raster.Clamp01(v)
	}
	return out, nil
}
