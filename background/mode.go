package background

import "github.com/chaos-io/bgblend/raster"

// Mode 背景来源，ImageMode 或 BlurMode 二选一
type Mode interface {
	isMode()
}

// ImageMode 固定背景图，按帧尺寸拉伸后缓存
type ImageMode struct {
	Path          string
	Interpolation Interpolation
	// BlurRadius 大于 0 时缓存前对背景图做一次模糊
	BlurRadius int
	Kernel     raster.KernelKind
}

// BlurMode 每帧对当前画面做模糊作为背景
type BlurMode struct {
	Radius int
	Kernel raster.KernelKind
}

func (ImageMode) isMode() {}
func (BlurMode) isMode()  {}
