// Package segment 语义分割模型的边界，模型本身对本仓库是黑盒
package segment

import (
	"context"
	"errors"
	"image"

	"github.com/chaos-io/bgblend/mask"
)

// ErrModelInference 模型推理失败，只丢弃当前帧
var ErrModelInference = errors.New("model inference failed")

//go:generate mockgen -destination=mocks/segmenter.go -package=mocks . Segmenter,Labeler
type Segmenter interface {
	Infer(ctx context.Context, frame image.Image) (mask.Result, error)
}

// Labeler 可选能力，返回模型支持的标签表，用于启动时校验 target_labels
type Labeler interface {
	Labels() []string
}
