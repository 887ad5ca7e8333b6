package pipeline

import (
	"errors"
	"fmt"

	"github.com/chaos-io/bgblend/background"
	"github.com/chaos-io/bgblend/config"
)

// Stage 流水线阶段名，出现在错误和日志里
type Stage string

const (
	StageInit       Stage = "init"
	StageAcquire    Stage = "acquire"
	StageSegment    Stage = "segment"
	StageExtract    Stage = "extract"
	StageBackground Stage = "background"
	StageComposite  Stage = "composite"
	StageEmit       Stage = "emit"
)

// FrameError 带帧序号和阶段的错误
type FrameError struct {
	Index int
	Stage Stage
	Err   error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("frame %d: %s: %v", e.Index, e.Stage, e.Err)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// Fatal 标记错误为致命，orchestrator 遇到后停止整个运行
// 供 Source / Sink 等外部协作者使用，比如输出端永久不可写
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// IsFatal 之后所有帧都无法产出的错误
func IsFatal(err error) bool {
	var fe *fatalError
	return errors.As(err, &fe) ||
		errors.Is(err, background.ErrBackgroundLoad) ||
		errors.Is(err, config.ErrInvalidConfiguration)
}
