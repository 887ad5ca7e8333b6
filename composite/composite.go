package composite

import (
	"fmt"
	"image"

	"github.com/chaos-io/bgblend/raster"
)

// Composite 按 alpha 把前景帧叠加到背景上，返回新分配的帧
// out = a*frame + (1-a)*background，逐通道计算，0.5 向上取整
func Composite(frame, background *image.NRGBA, alpha *raster.Grid) (*image.NRGBA, error) {
	if frame == nil || background == nil || alpha == nil {
		return nil, fmt.Errorf("composite: nil frame, background or alpha map")
	}
	size := raster.FrameSize(frame)
	if err := raster.CheckSize("background", size, raster.FrameSize(background)); err != nil {
		return nil, err
	}
	if err := raster.CheckSize("alpha map", size, alpha.Size()); err != nil {
		return nil, err
	}

	out := image.NewNRGBA(image.Rect(0, 0, size.X, size.Y))
	for y := 0; y < size.Y; y++ {
		fr := frame.Pix[y*frame.Stride:]
		br := background.Pix[y*background.Stride:]
		or := out.Pix[y*out.Stride:]
		for x := 0; x < size.X; x++ {
			a := raster.Clamp01(alpha.At(x, y))
			p := x * 4
			for c := 0; c < 3; c++ {
				or[p+c] = blend(fr[p+c], br[p+c], a)
			}
			or[p+3] = 255
		}
	}
	return out, nil
}

func blend(f, b uint8, a float64) uint8 {
	switch a {
	case 1:
		return f
	case 0:
		return b
	}
	return raster.ToByte(a*float64(f) + (1-a)*float64(b))
}
