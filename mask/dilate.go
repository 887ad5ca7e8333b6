package mask

import (
	"fmt"

	"github.com/chaos-io/bgblend/raster"
)

// Shape 膨胀结构元素形状
type Shape string

const (
	ShapeCross Shape = "cross"
	ShapeRect  Shape = "rect"
)

// Dilate 灰度膨胀，取 (2*size+1) 邻域内的最大值，用来扩大前景避免边缘被削掉
// cross 只看同一行和同一列，rect 看整个方形窗口，size 为 0 时原样复制
func Dilate(g *raster.Grid, size int, shape Shape) (*raster.Grid, error) {
	if size < 0 {
		return nil, fmt.Errorf("dilation size must not be negative, got %d", size)
	}
	if size == 0 {
		return g.Clone(), nil
	}

	switch shape {
	case ShapeCross, "":
		rows := maxRows(g, size)
		cols := maxCols(g, size)
		for i, v := range cols.Pix {
			rows.Pix[i] = max(rows.Pix[i], v)
		}
		return rows, nil
	case ShapeRect:
		return maxCols(maxRows(g, size), size), nil
	default:
		return nil, fmt.Errorf("unknown dilation shape %q", shape)
	}
}

func maxRows(g *raster.Grid, size int) *raster.Grid {
	out := raster.NewGrid(g.Width, g.Height)
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			m := 0.0
			for dx := max(0, x-size); dx <= min(g.Width-1, x+size); dx++ {
				m = max(m, g.At(dx, y))
			}
			out.Set(x, y, m)
		}
	}
	return out
}

func maxCols(g *raster.Grid, size int) *raster.Grid {
	out := raster.NewGrid(g.Width, g.Height)
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			m := 0.0
			for dy := max(0, y-size); dy <= min(g.Height-1, y+size); dy++ {
				m = max(m, g.At(x, dy))
			}
			out.Set(x, y, m)
		}
	}
	return out
}
