package input

import (
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"time"

	"github.com/chaos-io/bgblend/util"
)

// SnapshotSource 定时拉取网络摄像头的快照地址
type SnapshotSource struct {
	url      string
	interval time.Duration
	limit    int
	client   *http.Client

	count int
	last  time.Time
}

// NewSnapshotSource limit 为 0 表示不限帧数
func NewSnapshotSource(url string, interval time.Duration, limit int) *SnapshotSource {
	return &SnapshotSource{
		url:      url,
		interval: interval,
		limit:    limit,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *SnapshotSource) WithClient(client *http.Client) *SnapshotSource {
	s.client = client
	return s
}

func (s *SnapshotSource) Next(ctx context.Context) (image.Image, error) {
	if s.limit > 0 && s.count >= s.limit {
		return nil, io.EOF
	}
	if wait := s.interval - time.Since(s.last); !s.last.IsZero() && wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	s.last = time.Now()
	s.count++

	img, err := util.DownloadImage(ctx, s.client, s.url)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("snapshot %d: %v: %w", s.count, err, ErrFrameDecode)
	}
	return img, nil
}

func (s *SnapshotSource) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
