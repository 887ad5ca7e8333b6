package output

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// DirSink 把每一帧写成目录下的 frame_000000.png
type DirSink struct {
	dir string
}

func NewDirSink(dir string) (*DirSink, error) {
	if dir == "" {
		return nil, fmt.Errorf("output dir is empty")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &DirSink{dir: dir}, nil
}

func (s *DirSink) Path(index int) string {
	return filepath.Join(s.dir, fmt.Sprintf("frame_%06d.png", index))
}

func (s *DirSink) Emit(_ context.Context, index int, frame *image.NRGBA) error {
	if err := imaging.Save(frame, s.Path(index)); err != nil {
		return fmt.Errorf("save frame %d: %w", index, err)
	}
	return nil
}

func (s *DirSink) Close() error {
	return nil
}
