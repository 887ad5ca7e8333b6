package raster

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// KernelKind 平滑核类型，蒙版平滑和背景模糊共用同一族
type KernelKind string

const (
	KernelGaussian KernelKind = "gaussian"
	KernelBox      KernelKind = "box"
)

// NewKernel 生成长度为 2*radius+1 的一维归一化卷积核
// radius 为 0 时返回 [1]，即恒等变换
func NewKernel(kind KernelKind, radius int) ([]float64, error) {
	if radius < 0 {
		return nil, fmt.Errorf("kernel radius must not be negative, got %d", radius)
	}
	size := 2*radius + 1
	k := make([]float64, size)
	if radius == 0 {
		k[0] = 1
		return k, nil
	}

	switch kind {
	case KernelBox:
		for i := range k {
			k[i] = 1
		}
	case KernelGaussian, "":
		sigma := gaussianSigma(size)
		for i := range k {
			d := float64(i - radius)
			k[i] = math.Exp(-0.5 * d * d / (sigma * sigma))
		}
	default:
		return nil, fmt.Errorf("unknown kernel kind %q", kind)
	}

	floats.Scale(1/floats.Sum(k), k)
	return k, nil
}

// gaussianSigma 按核尺寸推算 sigma: 0.3*((ksize-1)*0.5-1)+0.8
func gaussianSigma(size int) float64 {
	return 0.3*((float64(size)-1)*0.5-1) + 0.8
}
