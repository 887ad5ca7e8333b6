package raster

import (
	"image"
	"image/draw"
)

// ToNRGBA 把任意图片转成原点在 (0,0)、alpha 为 255 的 NRGBA 帧
// 已经符合要求的 NRGBA 直接返回，不复制
func ToNRGBA(img image.Image) *image.NRGBA {
	if nrgba, ok := img.(*image.NRGBA); ok && nrgba.Rect.Min == (image.Point{}) && opaque(nrgba) {
		return nrgba
	}
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 255
	}
	return dst
}

func opaque(img *image.NRGBA) bool {
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 255 {
			return false
		}
	}
	return true
}

// FrameSize 帧的宽高
func FrameSize(img image.Image) image.Point {
	return img.Bounds().Size()
}
