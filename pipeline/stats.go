package pipeline

import (
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap/zapcore"
)

// Stats 运行统计，可被其它 goroutine 并发读取
type Stats struct {
	started  atomic.Time
	stopped  atomic.Time
	acquired atomic.Int64
	emitted  atomic.Int64
	dropped  atomic.Int64
}

// Snapshot 某一时刻的统计值
type Snapshot struct {
	Acquired int64         `json:"acquired"`
	Emitted  int64         `json:"emitted"`
	Dropped  int64         `json:"dropped"`
	Elapsed  time.Duration `json:"elapsed"`
	FPS      float64       `json:"fps"`
}

func (s *Stats) start() {
	s.started.Store(time.Now())
}

func (s *Stats) stop() {
	s.stopped.Store(time.Now())
}

func (s *Stats) Snapshot() Snapshot {
	snap := Snapshot{
		Acquired: s.acquired.Load(),
		Emitted:  s.emitted.Load(),
		Dropped:  s.dropped.Load(),
	}
	started := s.started.Load()
	if started.IsZero() {
		return snap
	}
	end := s.stopped.Load()
	if end.IsZero() {
		end = time.Now()
	}
	snap.Elapsed = end.Sub(started)
	if secs := snap.Elapsed.Seconds(); secs > 0 {
		snap.FPS = float64(snap.Emitted) / secs
	}
	return snap
}

func (s Snapshot) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddInt64("acquired", s.Acquired)
	enc.AddInt64("emitted", s.Emitted)
	enc.AddInt64("dropped", s.Dropped)
	enc.AddDuration("elapsed", s.Elapsed)
	enc.AddFloat64("fps", s.FPS)
	return nil
}
