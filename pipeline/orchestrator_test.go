package pipeline

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/chaos-io/bgblend/background"
	"github.com/chaos-io/bgblend/config"
	"github.com/chaos-io/bgblend/input"
	"github.com/chaos-io/bgblend/mask"
	"github.com/chaos-io/bgblend/raster"
	"github.com/chaos-io/bgblend/segment"
	"github.com/chaos-io/bgblend/segment/mocks"
	"github.com/chaos-io/bgblend/smooth"
)

type sliceSource struct {
	frames []image.Image
	errs   map[int]error
	next   int
}

func (s *sliceSource) Next(ctx context.Context) (image.Image, error) {
	if s.next >= len(s.frames) {
		return nil, io.EOF
	}
	i := s.next
	s.next++
	if err := s.errs[i]; err != nil {
		return nil, err
	}
	return s.frames[i], nil
}

func (s *sliceSource) Close() error { return nil }

type recordingSink struct {
	mu      sync.Mutex
	indices []int
	frames  []*image.NRGBA
	err     error
}

func (s *recordingSink) Emit(ctx context.Context, index int, frame *image.NRGBA) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indices = append(s.indices, index)
	s.frames = append(s.frames, frame)
	return nil
}

func (s *recordingSink) Close() error { return nil }

// funcSegmenter 按帧序号返回预设结果
type funcSegmenter struct {
	labels []string
	calls  int
	fn     func(call int, frame image.Image) (mask.Result, error)
}

func (f *funcSegmenter) Infer(ctx context.Context, frame image.Image) (mask.Result, error) {
	call := f.calls
	f.calls++
	return f.fn(call, frame)
}

func (f *funcSegmenter) Labels() []string { return f.labels }

var modelLabels = []string{"background", "person", "dog"}

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func uniformLabels(w, h, class int) *mask.LabelMap {
	classes := make([]int, w*h)
	for i := range classes {
		classes[i] = class
	}
	return &mask.LabelMap{Width: w, Height: h, Labels: modelLabels, Classes: classes}
}

func writeBackground(t *testing.T, c color.NRGBA) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bg.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, solid(2, 2, c)))
	require.NoError(t, f.Close())
	return path
}

func newOrchestrator(t *testing.T, opts Options) *Orchestrator {
	t.Helper()
	if opts.Smoother == nil {
		s, err := smooth.New(smooth.Options{})
		require.NoError(t, err)
		opts.Smoother = s
	}
	if opts.Background == nil {
		p, err := background.NewProvider(background.BlurMode{Radius: 1})
		require.NoError(t, err)
		opts.Background = p
	}
	if opts.Targets.Len() == 0 {
		opts.Targets = mask.NewLabelSet("person")
	}
	o, err := New(opts, zap.NewNop())
	require.NoError(t, err)
	return o
}

func TestOrchestrator_EmitsEveryFrame(t *testing.T) {
	t.Parallel()

	src := &sliceSource{frames: []image.Image{
		solid(4, 3, color.NRGBA{R: 200, A: 255}),
		solid(4, 3, color.NRGBA{G: 200, A: 255}),
		solid(4, 3, color.NRGBA{B: 200, A: 255}),
	}}
	sink := &recordingSink{}
	seg := &funcSegmenter{labels: modelLabels, fn: func(call int, frame image.Image) (mask.Result, error) {
		return uniformLabels(4, 3, 1), nil
	}}

	o := newOrchestrator(t, Options{Source: src, Segmenter: seg, Sink: sink})
	assert.Equal(t, Idle, o.State())
	assert.NotEmpty(t, o.RunID())

	require.NoError(t, o.Run(context.Background()))
	assert.Equal(t, Stopped, o.State())
	assert.Equal(t, []int{0, 1, 2}, sink.indices)
	// 全部是前景，输出等于输入
	assert.Equal(t, src.frames[1].(*image.NRGBA).Pix, sink.frames[1].Pix)

	stats := o.Stats()
	assert.Equal(t, int64(3), stats.Acquired)
	assert.Equal(t, int64(3), stats.Emitted)
	assert.Equal(t, int64(0), stats.Dropped)

	assert.Error(t, o.Run(context.Background()), "a stopped pipeline cannot run again")
}

func TestOrchestrator_MissingBackgroundStops(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	seg := mocks.NewMockSegmenter(ctrl)
	// 不设置 EXPECT: 任何推理调用都会让测试失败

	p, err := background.NewProvider(background.ImageMode{Path: filepath.Join(t.TempDir(), "missing.jpg")})
	require.NoError(t, err)

	sink := &recordingSink{}
	o := newOrchestrator(t, Options{
		Source:     &sliceSource{frames: []image.Image{solid(2, 2, color.NRGBA{A: 255})}},
		Segmenter:  seg,
		Background: p,
		Sink:       sink,
	})

	err = o.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, background.ErrBackgroundLoad)
	assert.True(t, IsFatal(err))
	assert.Equal(t, Stopped, o.State())
	assert.Empty(t, sink.frames)

	var fe *FrameError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, StageInit, fe.Stage)
}

func TestOrchestrator_DropsFailedFrames(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	seg := mocks.NewMockSegmenter(ctrl)
	gomock.InOrder(
		seg.EXPECT().Infer(gomock.Any(), gomock.Any()).Return(uniformLabels(2, 2, 1), nil),
		seg.EXPECT().Infer(gomock.Any(), gomock.Any()).Return(nil, segment.ErrModelInference),
		seg.EXPECT().Infer(gomock.Any(), gomock.Any()).Return(uniformLabels(3, 3, 1), nil),
		seg.EXPECT().Infer(gomock.Any(), gomock.Any()).Return(uniformLabels(2, 2, 0), nil),
	)

	frame := solid(2, 2, color.NRGBA{R: 10, A: 255})
	src := &sliceSource{
		frames: []image.Image{frame, frame, frame, nil, frame},
		errs:   map[int]error{3: input.ErrFrameDecode},
	}
	sink := &recordingSink{}
	o := newOrchestrator(t, Options{Source: src, Segmenter: seg, Sink: sink})

	require.NoError(t, o.Run(context.Background()))
	assert.Equal(t, []int{0, 4}, sink.indices)

	stats := o.Stats()
	assert.Equal(t, int64(4), stats.Acquired)
	assert.Equal(t, int64(2), stats.Emitted)
	assert.Equal(t, int64(3), stats.Dropped)
}

func TestOrchestrator_FatalSinkErrorStops(t *testing.T) {
	t.Parallel()

	seg := &funcSegmenter{fn: func(call int, frame image.Image) (mask.Result, error) {
		return uniformLabels(1, 1, 1), nil
	}}
	src := &sliceSource{frames: []image.Image{solid(1, 1, color.NRGBA{A: 255}), solid(1, 1, color.NRGBA{A: 255})}}
	sink := &recordingSink{err: Fatal(errors.New("disk full"))}

	o := newOrchestrator(t, Options{Source: src, Segmenter: seg, Sink: sink})
	err := o.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frame 0: emit: disk full")
	assert.Equal(t, 1, seg.calls)
}

func TestOrchestrator_UnknownTargetLabel(t *testing.T) {
	t.Parallel()

	seg := &funcSegmenter{labels: modelLabels}
	o := newOrchestrator(t, Options{
		Source:    &sliceSource{},
		Segmenter: seg,
		Targets:   mask.NewLabelSet("person", "unicorn"),
		Sink:      &recordingSink{},
	})

	err := o.Run(context.Background())
	assert.ErrorIs(t, err, config.ErrInvalidConfiguration)
	assert.Contains(t, err.Error(), "unicorn")
	assert.Equal(t, Stopped, o.State())
}

func TestOrchestrator_TemporalSmoothingAcrossFrames(t *testing.T) {
	t.Parallel()

	p, err := background.NewProvider(background.ImageMode{Path: writeBackground(t, color.NRGBA{A: 255})})
	require.NoError(t, err)
	s, err := smooth.New(smooth.Options{Radius: 0, Decay: 0.5})
	require.NoError(t, err)

	white := solid(1, 1, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	seg := &funcSegmenter{fn: func(call int, frame image.Image) (mask.Result, error) {
		if call == 0 {
			return uniformLabels(1, 1, 1), nil
		}
		return uniformLabels(1, 1, 0), nil
	}}
	sink := &recordingSink{}
	o := newOrchestrator(t, Options{
		Source:     &sliceSource{frames: []image.Image{white, white, white}},
		Segmenter:  seg,
		Smoother:   s,
		Background: p,
		Sink:       sink,
	})

	require.NoError(t, o.Run(context.Background()))
	require.Len(t, sink.frames, 3)
	// alpha: 1 -> 0.5 -> 0.25
	assert.Equal(t, uint8(255), sink.frames[0].Pix[0])
	assert.Equal(t, uint8(128), sink.frames[1].Pix[0])
	assert.Equal(t, uint8(64), sink.frames[2].Pix[0])
}

func TestOrchestrator_DilationAndMaxFrames(t *testing.T) {
	t.Parallel()

	p, err := background.NewProvider(background.ImageMode{Path: writeBackground(t, color.NRGBA{A: 255})})
	require.NoError(t, err)

	seg := &funcSegmenter{fn: func(call int, frame image.Image) (mask.Result, error) {
		lm := uniformLabels(5, 1, 0)
		lm.Classes[2] = 1
		return lm, nil
	}}
	white := solid(5, 1, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	sink := &recordingSink{}
	o := newOrchestrator(t, Options{
		Source:     &sliceSource{frames: []image.Image{white, white, white}},
		Segmenter:  seg,
		Dilation:   1,
		Shape:      mask.ShapeCross,
		Background: p,
		Sink:       sink,
		MaxFrames:  2,
	})

	require.NoError(t, o.Run(context.Background()))
	require.Len(t, sink.frames, 2)
	row := sink.frames[0]
	assert.Equal(t, uint8(0), row.NRGBAAt(0, 0).R)
	assert.Equal(t, uint8(255), row.NRGBAAt(1, 0).R)
	assert.Equal(t, uint8(255), row.NRGBAAt(3, 0).R)
	assert.Equal(t, uint8(0), row.NRGBAAt(4, 0).R)
}

func TestOrchestrator_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sink := &recordingSink{}
	o := newOrchestrator(t, Options{
		Source:    &sliceSource{frames: []image.Image{solid(1, 1, color.NRGBA{A: 255})}},
		Segmenter: &funcSegmenter{},
		Sink:      sink,
	})
	require.NoError(t, o.Run(ctx))
	assert.Empty(t, sink.frames)
	assert.Equal(t, Stopped, o.State())
}

func TestNew_RequiresComponents(t *testing.T) {
	t.Parallel()

	_, err := New(Options{}, nil)
	assert.Error(t, err)
}

func TestIsFatal(t *testing.T) {
	t.Parallel()

	assert.True(t, IsFatal(&FrameError{Stage: StageBackground, Err: background.ErrBackgroundLoad}))
	assert.True(t, IsFatal(config.ErrInvalidConfiguration))
	assert.True(t, IsFatal(Fatal(errors.New("boom"))))
	assert.False(t, IsFatal(&FrameError{Stage: StageExtract, Err: raster.ErrDimensionMismatch}))
	assert.False(t, IsFatal(segment.ErrModelInference))
	assert.Nil(t, Fatal(nil))
}

func TestReporter(t *testing.T) {
	t.Parallel()

	o := newOrchestrator(t, Options{Source: &sliceSource{}, Segmenter: &funcSegmenter{}, Sink: &recordingSink{}})

	_, err := NewReporter(o, 0, zap.NewNop())
	assert.Error(t, err)

	r, err := NewReporter(o, time.Second, zap.NewNop())
	require.NoError(t, err)
	r.Start()
	require.NoError(t, o.Run(context.Background()))
	r.Stop()
}
