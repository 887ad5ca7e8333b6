package raster

import (
	"errors"
	"fmt"
	"image"
)

// ErrDimensionMismatch 输入网格与帧尺寸不一致，只影响当前帧
var ErrDimensionMismatch = errors.New("dimension mismatch")

// CheckSize 尺寸不一致时返回包装了 ErrDimensionMismatch 的错误
func CheckSize(what string, want, got image.Point) error {
	if want == got {
		return nil
	}
	return fmt.Errorf("%s: want %dx%d, got %dx%d: %w", what, want.X, want.Y, got.X, got.Y, ErrDimensionMismatch)
}
