package raster

import (
	"image"
	"image/color"
	"math"
)

// Grid 单通道浮点图，按行存储，用于置信度图和 alpha 图，取值范围 [0,1]
type Grid struct {
	Width  int
	Height int
	Pix    []float64
}

func NewGrid(width, height int) *Grid {
	return &Grid{
		Width:  width,
		Height: height,
		Pix:    make([]float64, width*height),
	}
}

func (g *Grid) Size() image.Point {
	return image.Pt(g.Width, g.Height)
}

func (g *Grid) At(x, y int) float64 {
	return g.Pix[y*g.Width+x]
}

func (g *Grid) Set(x, y int, v float64) {
	g.Pix[y*g.Width+x] = v
}

// Fill 把所有像素设为同一个值
func (g *Grid) Fill(v float64) *Grid {
	for i := range g.Pix {
		g.Pix[i] = v
	}
	return g
}

func (g *Grid) Clone() *Grid {
	c := &Grid{Width: g.Width, Height: g.Height, Pix: make([]float64, len(g.Pix))}
	copy(c.Pix, g.Pix)
	return c
}

// Equal 逐像素精确比较
func (g *Grid) Equal(o *Grid) bool {
	if o == nil || g.Width != o.Width || g.Height != o.Height {
		return false
	}
	for i, v := range g.Pix {
		if v != o.Pix[i] {
			return false
		}
	}
	return true
}

// ToGray 把 [0,1] 的值映射到 0-255 灰度，调试输出用
func (g *Grid) ToGray() *image.Gray {
	gray := image.NewGray(image.Rect(0, 0, g.Width, g.Height))
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			gray.SetGray(x, y, color.Gray{Y: ToByte(g.At(x, y) * 255)})
		}
	}
	return gray
}

// Clamp01 把值限制在 [0,1]，NaN 视为 0
func Clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// ToByte 四舍五入（0.5 向上）并截断到 [0,255]
func ToByte(v float64) uint8 {
	v = math.Floor(v + 0.5)
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 255:
		return 255
	default:
		return uint8(v)
	}
}
