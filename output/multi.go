package output

import (
	"context"
	"image"

	"go.uber.org/multierr"

	"github.com/chaos-io/bgblend/pipeline"
)

// Multi 把同一帧依次交给多个 sink，某个 sink 出错不影响其它 sink
type Multi []pipeline.Sink

func (m Multi) Emit(ctx context.Context, index int, frame *image.NRGBA) error {
	var err error
	for _, s := range m {
		err = multierr.Append(err, s.Emit(ctx, index, frame))
	}
	return err
}

func (m Multi) Close() error {
	var err error
	for _, s := range m {
		err = multierr.Append(err, s.Close())
	}
	return err
}
