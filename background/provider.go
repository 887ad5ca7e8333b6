package background

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/chaos-io/bgblend/raster"
)

// ErrBackgroundLoad 背景图缺失或无法解码，之后所有帧都无法输出
var ErrBackgroundLoad = errors.New("background load failed")

// Provider 提供每帧的背景缓冲
//
//	image 模式: 启动时解码一次，首帧按帧尺寸拉伸后缓存，之后直接复用
//	blur  模式: 每帧对当前画面模糊
//
// 返回的缓存背景只读，调用方不能修改
type Provider struct {
	mode   Mode
	kernel []float64

	decoded image.Image
	cached  *image.NRGBA
}

func NewProvider(mode Mode) (*Provider, error) {
	var (
		kernel []float64
		err    error
	)
	switch m := mode.(type) {
	case ImageMode:
		if m.Path == "" {
			return nil, fmt.Errorf("image mode without a path")
		}
		if !m.Interpolation.Valid() {
			return nil, fmt.Errorf("unknown interpolation %q", m.Interpolation)
		}
		kernel, err = raster.NewKernel(m.Kernel, m.BlurRadius)
	case BlurMode:
		kernel, err = raster.NewKernel(m.Kernel, m.Radius)
	default:
		return nil, fmt.Errorf("unsupported background mode %T", mode)
	}
	if err != nil {
		return nil, fmt.Errorf("build background kernel: %w", err)
	}
	return &Provider{mode: mode, kernel: kernel}, nil
}

func (p *Provider) Mode() Mode {
	return p.mode
}

// Load 解码背景图，blur 模式什么也不做
func (p *Provider) Load() error {
	m, ok := p.mode.(ImageMode)
	if !ok {
		return nil
	}
	img, err := imaging.Open(m.Path, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("open %s: %v: %w", m.Path, err, ErrBackgroundLoad)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return fmt.Errorf("open %s: empty image: %w", m.Path, ErrBackgroundLoad)
	}
	p.decoded = img
	p.cached = nil
	return nil
}

func (p *Provider) Provide(frame *image.NRGBA) (*image.NRGBA, error) {
	switch m := p.mode.(type) {
	case BlurMode:
		return raster.ConvolveNRGBA(frame, p.kernel), nil
	case ImageMode:
		return p.image(m, raster.FrameSize(frame))
	default:
		return nil, fmt.Errorf("unsupported background mode %T", p.mode)
	}
}

func (p *Provider) image(m ImageMode, size image.Point) (*image.NRGBA, error) {
	if p.decoded == nil {
		return nil, fmt.Errorf("background image %s not loaded: %w", m.Path, ErrBackgroundLoad)
	}
	if p.cached != nil && raster.FrameSize(p.cached) == size {
		return p.cached, nil
	}

	// 帧尺寸变化时才重新缩放
	bg, err := stretch(p.decoded, size, m.Interpolation)
	if err != nil {
		return nil, fmt.Errorf("resize background: %w", err)
	}
	if len(p.kernel) > 1 {
		bg = raster.ConvolveNRGBA(bg, p.kernel)
	}
	p.cached = bg
	return bg, nil
}
