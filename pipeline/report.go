package pipeline

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Reporter 按固定间隔把运行统计写到日志
type Reporter struct {
	c *cron.Cron
}

func NewReporter(o *Orchestrator, every time.Duration, logger *zap.Logger) (*Reporter, error) {
	if every <= 0 {
		return nil, fmt.Errorf("report interval must be positive, got %v", every)
	}
	c := cron.New(cron.WithSeconds())
	_, err := c.AddFunc(fmt.Sprintf("@every %s", every), func() {
		logger.Info("pipeline stats",
			zap.String("state", o.State().String()),
			zap.Object("stats", o.Stats()))
	})
	if err != nil {
		return nil, fmt.Errorf("schedule stats report: %w", err)
	}
	return &Reporter{c: c}, nil
}

func (r *Reporter) Start() {
	r.c.Start()
}

// Stop 等待正在执行的上报结束
func (r *Reporter) Stop() {
	<-r.c.Stop().Done()
}
