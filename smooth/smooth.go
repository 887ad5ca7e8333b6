// Package smooth 对前景置信度图做边缘平滑：空间低通去锯齿，时间指数衰减去抖动
package smooth

import (
	"fmt"

	"github.com/chaos-io/bgblend/raster"
)

type Options struct {
	// Radius 空间核半径，0 表示不做空间平滑
	Radius int
	// Decay 上一帧 alpha 的权重，取值 [0,1)
	Decay  float64
	Kernel raster.KernelKind
}

// EdgeSmoother 无内部状态，上一帧 alpha 由调用方持有并传入
type EdgeSmoother struct {
	opts   Options
	kernel []float64
}

func New(opts Options) (*EdgeSmoother, error) {
	if opts.Decay < 0 || opts.Decay >= 1 {
		return nil, fmt.Errorf("smoothing decay must be in [0,1), got %v", opts.Decay)
	}
	k, err := raster.NewKernel(opts.Kernel, opts.Radius)
	if err != nil {
		return nil, fmt.Errorf("build smoothing kernel: %w", err)
	}
	return &EdgeSmoother{opts: opts, kernel: k}, nil
}

func (s *EdgeSmoother) Options() Options {
	return s.opts
}

// Smooth 返回新的 alpha 图，prior 为 nil 或尺寸不同时跳过时间平滑
func (s *EdgeSmoother) Smooth(conf, prior *raster.Grid) *raster.Grid {
	out := s.Spatial(conf)
	if prior == nil || prior.Size() != out.Size() {
		return out
	}
	return s.Temporal(out, prior)
}

// Spatial 空间平滑，半径为 0 时得到与输入完全相同的副本
func (s *EdgeSmoother) Spatial(conf *raster.Grid) *raster.Grid {
	return raster.ConvolveGrid(conf, s.kernel)
}

// Temporal alpha[t] = decay*alpha[t-1] + (1-decay)*spatial，原地写入 spatial
func (s *EdgeSmoother) Temporal(spatial, prior *raster.Grid) *raster.Grid {
	d := s.opts.Decay
	if d == 0 {
		return spatial
	}
	for i, v := range spatial.Pix {
		spatial.Pix[i] = raster.Clamp01(d*prior.Pix[i] + (1-d)*v)
	}
	return spatial
}
