package background

import (
	"fmt"
	"image"

	"github.com/nfnt/resize"
	"golang.org/x/image/draw"

	"github.com/chaos-io/bgblend/raster"
)

// Interpolation 背景图缩放插值方式
type Interpolation string

const (
	Nearest    Interpolation = "nearest"
	BiLinear   Interpolation = "bilinear"
	CatmullRom Interpolation = "catmullrom"
	Lanczos    Interpolation = "lanczos"
)

func (i Interpolation) Valid() bool {
	switch i {
	case Nearest, BiLinear, CatmullRom, Lanczos, "":
		return true
	}
	return false
}

// stretch 拉伸到目标尺寸，不保持宽高比、不加黑边
func stretch(img image.Image, size image.Point, interp Interpolation) (*image.NRGBA, error) {
	if size.X <= 0 || size.Y <= 0 {
		return nil, fmt.Errorf("invalid frame size %v", size)
	}

	switch interp {
	case Lanczos:
		return raster.ToNRGBA(resize.Resize(uint(size.X), uint(size.Y), img, resize.Lanczos3)), nil
	case Nearest, "", BiLinear, CatmullRom:
		dst := image.NewNRGBA(image.Rect(0, 0, size.X, size.Y))
		scaler(interp).Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
		return raster.ToNRGBA(dst), nil
	default:
		return nil, fmt.Errorf("unknown interpolation %q", interp)
	}
}

func scaler(interp Interpolation) draw.Scaler {
	switch interp {
	case BiLinear:
		return draw.BiLinear
	case CatmullRom:
		return draw.CatmullRom
	default:
		return draw.NearestNeighbor
	}
}
