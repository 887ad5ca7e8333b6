package input

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/chaos-io/bgblend/util"
)

// ErrFrameDecode 单帧读取或解码失败，源会继续前进到下一帧
var ErrFrameDecode = errors.New("frame decode failed")

var frameExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

// DirSource 按文件名顺序读取目录里的图片序列
type DirSource struct {
	files []string
	next  int
}

func NewDirSource(dir string) (*DirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frame dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !frameExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return &DirSource{files: files}, nil
}

func (s *DirSource) Len() int {
	return len(s.files)
}

// Next 读完返回 io.EOF
func (s *DirSource) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.next >= len(s.files) {
		return nil, io.EOF
	}
	path := s.files[s.next]
	s.next++

	img, err := util.OpenImage(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %v: %w", filepath.Base(path), err, ErrFrameDecode)
	}
	return img, nil
}

func (s *DirSource) Close() error {
	s.next = len(s.files)
	return nil
}
