// Package app 把配置装配成一条可运行的流水线
package app

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/chaos-io/bgblend/background"
	"github.com/chaos-io/bgblend/config"
	"github.com/chaos-io/bgblend/input"
	"github.com/chaos-io/bgblend/mask"
	"github.com/chaos-io/bgblend/output"
	"github.com/chaos-io/bgblend/pipeline"
	"github.com/chaos-io/bgblend/raster"
	"github.com/chaos-io/bgblend/segment"
	"github.com/chaos-io/bgblend/smooth"
)

// Deps 可选的外部协作者，为空时按配置创建
type Deps struct {
	Segmenter segment.Segmenter
	Source    pipeline.Source
	Sinks     []pipeline.Sink
	Logger    *zap.Logger
}

type App struct {
	Orchestrator *pipeline.Orchestrator
	// Streamer 配置了 listen 时才有
	Streamer *output.Streamer

	settings *config.Settings
	source   pipeline.Source
	sink     pipeline.Sink
	logger   *zap.Logger
}

// SmootherOptions blur_level 同时是边缘平滑核半径
func SmootherOptions(s *config.Settings) smooth.Options {
	return smooth.Options{
		Radius: s.BlurLevel,
		Decay:  s.SmoothingDecay,
		Kernel: raster.KernelKind(s.Kernel),
	}
}

// BackgroundMode use_background_image 选图片模式，否则对原帧做模糊
func BackgroundMode(s *config.Settings) background.Mode {
	kernel := raster.KernelKind(s.Kernel)
	if s.UseBackgroundImage {
		m := background.ImageMode{
			Path:          s.ImagePath(),
			Interpolation: background.Interpolation(s.Interpolation),
			Kernel:        kernel,
		}
		if s.Blur {
			m.BlurRadius = s.BlurLevel
		}
		return m
	}
	return background.BlurMode{Radius: s.BlurLevel, Kernel: kernel}
}

func Build(ctx context.Context, s *config.Settings, deps Deps) (*App, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	smoother, err := smooth.New(SmootherOptions(s))
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, config.ErrInvalidConfiguration)
	}
	provider, err := background.NewProvider(BackgroundMode(s))
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, config.ErrInvalidConfiguration)
	}

	seg := deps.Segmenter
	if seg == nil {
		if seg, err = newRemote(ctx, s, logger); err != nil {
			return nil, err
		}
	}

	a := &App{settings: s, logger: logger}
	a.source = deps.Source
	if a.source == nil {
		if a.source, err = newSource(s); err != nil {
			return nil, err
		}
	}

	sinks := append([]pipeline.Sink(nil), deps.Sinks...)
	if s.OutputDir != "" {
		d, err := output.NewDirSink(s.OutputDir)
		if err != nil {
			return nil, multierr.Append(err, a.source.Close())
		}
		sinks = append(sinks, d)
	}
	if s.Listen != "" {
		a.Streamer = output.NewStreamer(s.Listen, 0, logger.Named("streamer"))
		sinks = append(sinks, a.Streamer)
	}
	switch len(sinks) {
	case 0:
		return nil, multierr.Append(
			fmt.Errorf("no output configured, set output_dir or listen: %w", config.ErrInvalidConfiguration),
			a.source.Close())
	case 1:
		a.sink = sinks[0]
	default:
		a.sink = output.Multi(sinks)
	}

	a.Orchestrator, err = pipeline.New(pipeline.Options{
		Source:     a.source,
		Segmenter:  seg,
		Targets:    mask.NewLabelSet(s.TargetLabels...),
		Dilation:   s.DilationSize,
		Shape:      mask.Shape(s.DilationShape),
		Smoother:   smoother,
		Background: provider,
		Sink:       a.sink,
		MaxFrames:  s.MaxFrames,
	}, logger.Named("pipeline"))
	if err != nil {
		return nil, multierr.Combine(err, a.source.Close(), a.sink.Close())
	}
	if a.Streamer != nil {
		a.Streamer.Attach(a.Orchestrator)
	}
	return a, nil
}

// Run 启动 HTTP 输出和统计上报，跑完整条流后关闭输入输出
func (a *App) Run(ctx context.Context) (err error) {
	defer func() {
		err = multierr.Combine(err, a.source.Close(), a.sink.Close())
	}()

	if a.Streamer != nil {
		errc := a.Streamer.Start()
		go func() {
			for e := range errc {
				a.logger.Error("streamer stopped", zap.Error(e))
			}
		}()
	}

	if a.settings.StatsInterval > 0 {
		r, err := pipeline.NewReporter(a.Orchestrator, a.settings.StatsInterval, a.logger.Named("stats"))
		if err != nil {
			return err
		}
		r.Start()
		defer r.Stop()
	}

	return a.Orchestrator.Run(ctx)
}

// Check 不处理帧，只确认背景可加载、目标标签模型都认识
func Check(ctx context.Context, s *config.Settings, seg segment.Segmenter) error {
	provider, err := background.NewProvider(BackgroundMode(s))
	if err != nil {
		return fmt.Errorf("%v: %w", err, config.ErrInvalidConfiguration)
	}
	if err := provider.Load(); err != nil {
		return err
	}
	if seg == nil && s.SegmenterURL != "" {
		r := segment.NewRemote(s.SegmenterURL, s.ModelID, s.SegmenterTimeout)
		if _, err := r.FetchLabels(ctx); err != nil {
			return err
		}
		seg = r
	}
	if l, ok := seg.(segment.Labeler); ok {
		if unknown := mask.NewLabelSet(s.TargetLabels...).Unknown(l.Labels()); len(unknown) > 0 {
			return fmt.Errorf("target labels %v not provided by model %s: %w", unknown, s.ModelID, config.ErrInvalidConfiguration)
		}
	}
	return nil
}

func newRemote(ctx context.Context, s *config.Settings, logger *zap.Logger) (*segment.Remote, error) {
	if s.SegmenterURL == "" {
		return nil, fmt.Errorf("segmenter_url is required: %w", config.ErrInvalidConfiguration)
	}
	r := segment.NewRemote(s.SegmenterURL, s.ModelID, s.SegmenterTimeout)
	labels, err := r.FetchLabels(ctx)
	if err != nil {
		// 拿不到标签表时跳过标签校验，推理失败会按帧丢弃
		logger.Warn("fetch model labels failed", zap.String("model_id", s.ModelID), zap.Error(err))
		return r, nil
	}
	logger.Info("model labels", zap.String("model_id", s.ModelID), zap.Strings("labels", labels))
	return r, nil
}

func newSource(s *config.Settings) (pipeline.Source, error) {
	switch {
	case s.SnapshotURL != "":
		return input.NewSnapshotSource(s.SnapshotURL, s.SnapshotInterval, s.MaxFrames), nil
	case s.InputDir != "":
		src, err := input.NewDirSource(s.InputDir)
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		return src, nil
	default:
		return nil, fmt.Errorf("no input configured, set input_dir or snapshot_url: %w", config.ErrInvalidConfiguration)
	}
}
