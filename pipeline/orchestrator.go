package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/segmentio/ksuid"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/chaos-io/bgblend/background"
	"github.com/chaos-io/bgblend/composite"
	"github.com/chaos-io/bgblend/config"
	"github.com/chaos-io/bgblend/mask"
	"github.com/chaos-io/bgblend/raster"
	"github.com/chaos-io/bgblend/segment"
	"github.com/chaos-io/bgblend/smooth"
)

// Source 帧来源，流结束时返回 io.EOF
type Source interface {
	Next(ctx context.Context) (image.Image, error)
	Close() error
}

// Sink 合成结果的去处
type Sink interface {
	Emit(ctx context.Context, index int, frame *image.NRGBA) error
	Close() error
}

type State int32

const (
	Idle State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Options 单次运行的组件
type Options struct {
	Source     Source
	Segmenter  segment.Segmenter
	Targets    mask.LabelSet
	Dilation   int
	Shape      mask.Shape
	Smoother   *smooth.EdgeSmoother
	Background *background.Provider
	Sink       Sink
	// MaxFrames 大于 0 时读满这么多帧就停止
	MaxFrames int
}

// Orchestrator 单线程逐帧执行:
// Acquire -> Segment -> Extract -> Smooth -> Background -> Composite -> Emit
type Orchestrator struct {
	opts   Options
	logger *zap.Logger
	runID  string

	state atomic.Int32
	stats Stats

	// 上一帧 alpha，只在 Run 的循环里读写
	prevAlpha *raster.Grid
}

func New(opts Options, logger *zap.Logger) (*Orchestrator, error) {
	switch {
	case opts.Source == nil:
		return nil, fmt.Errorf("pipeline: nil source")
	case opts.Segmenter == nil:
		return nil, fmt.Errorf("pipeline: nil segmenter")
	case opts.Smoother == nil:
		return nil, fmt.Errorf("pipeline: nil smoother")
	case opts.Background == nil:
		return nil, fmt.Errorf("pipeline: nil background provider")
	case opts.Sink == nil:
		return nil, fmt.Errorf("pipeline: nil sink")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	runID := ksuid.New().String()
	return &Orchestrator{
		opts:   opts,
		runID:  runID,
		logger: logger.With(zap.String("run_id", runID)),
	}, nil
}

func (o *Orchestrator) RunID() string {
	return o.runID
}

func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

func (o *Orchestrator) Stats() Snapshot {
	return o.stats.Snapshot()
}

// Run 处理整条流，流结束或 ctx 取消时返回 nil，致命错误时返回该错误
// 单帧错误只记录日志并丢帧，不中断流
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.state.CompareAndSwap(int32(Idle), int32(Running)) {
		return fmt.Errorf("pipeline already %s", o.State())
	}
	o.stats.start()
	defer func() {
		o.stats.stop()
		o.state.Store(int32(Stopped))
		o.logger.Info("pipeline stopped", zap.Object("stats", o.stats.Snapshot()))
	}()

	if err := o.init(); err != nil {
		o.logger.Error("pipeline init failed", zap.Error(err))
		return &FrameError{Index: -1, Stage: StageInit, Err: err}
	}
	o.logger.Info("pipeline running",
		zap.Strings("targets", o.opts.Targets.Labels()),
		zap.String("background", fmt.Sprintf("%T", o.opts.Background.Mode())),
		zap.Any("smoothing", o.opts.Smoother.Options()))

	for index := 0; o.opts.MaxFrames <= 0 || index < o.opts.MaxFrames; index++ {
		// 只在帧边界检查取消
		if ctx.Err() != nil {
			o.logger.Info("pipeline cancelled", zap.Int("frame", index))
			return nil
		}

		img, err := o.opts.Source.Next(ctx)
		if errors.Is(err, io.EOF) {
			o.logger.Info("stream ended", zap.Int("frames", index))
			return nil
		}
		if err != nil && ctx.Err() != nil {
			return nil
		}
		if err == nil {
			o.stats.acquired.Inc()
			err = o.process(ctx, index, img)
		} else {
			err = &FrameError{Index: index, Stage: StageAcquire, Err: err}
		}
		if err == nil {
			o.stats.emitted.Inc()
			continue
		}

		if IsFatal(err) {
			o.logger.Error("fatal frame error, stopping", zap.Int("frame", index), zap.Error(err))
			return err
		}
		o.stats.dropped.Inc()
		var fe *FrameError
		stage := Stage("")
		if errors.As(err, &fe) {
			stage = fe.Stage
		}
		o.logger.Warn("frame dropped", zap.Int("frame", index), zap.String("stage", string(stage)), zap.Error(err))
	}
	o.logger.Info("frame limit reached", zap.Int("frames", o.opts.MaxFrames))
	return nil
}

func (o *Orchestrator) init() error {
	if l, ok := o.opts.Segmenter.(segment.Labeler); ok {
		if known := l.Labels(); len(known) > 0 {
			if unknown := o.opts.Targets.Unknown(known); len(unknown) > 0 {
				return fmt.Errorf("target labels %v not provided by the model: %w", unknown, config.ErrInvalidConfiguration)
			}
			o.logger.Debug("model labels", zap.Strings("labels", known))
		}
	}
	if err := o.opts.Background.Load(); err != nil {
		return err
	}
	return nil
}

func (o *Orchestrator) process(ctx context.Context, index int, img image.Image) error {
	frame := raster.ToNRGBA(img)
	size := raster.FrameSize(frame)
	fail := func(stage Stage, err error) error {
		return &FrameError{Index: index, Stage: stage, Err: err}
	}

	res, err := o.opts.Segmenter.Infer(ctx, frame)
	if err != nil {
		return fail(StageSegment, err)
	}

	conf, err := mask.Extract(res, o.opts.Targets, size)
	if err != nil {
		return fail(StageExtract, err)
	}
	if o.opts.Dilation > 0 {
		if conf, err = mask.Dilate(conf, o.opts.Dilation, o.opts.Shape); err != nil {
			return fail(StageExtract, err)
		}
	}

	alpha := o.opts.Smoother.Smooth(conf, o.prevAlpha)
	o.prevAlpha = alpha

	bg, err := o.opts.Background.Provide(frame)
	if err != nil {
		return fail(StageBackground, err)
	}

	out, err := composite.Composite(frame, bg, alpha)
	if err != nil {
		return fail(StageComposite, err)
	}

	if err := o.opts.Sink.Emit(ctx, index, out); err != nil {
		return fail(StageEmit, err)
	}
	o.logger.Debug("frame emitted", zap.Int("frame", index))
	return nil
}
