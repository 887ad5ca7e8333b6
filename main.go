package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/chaos-io/bgblend/app"
	"github.com/chaos-io/bgblend/config"
	"github.com/chaos-io/bgblend/pipeline"
	"github.com/chaos-io/bgblend/util"
)

var (
	Version   = "dev"
	GitCommit = "unknown"
)

const (
	flagConfig    = "config"
	flagInput     = "input"
	flagSnapshot  = "snapshot-url"
	flagOutput    = "output"
	flagListen    = "listen"
	flagModelURL  = "model-url"
	flagLogMode   = "log-mode"
	flagMaxFrames = "max-frames"
)

func main() {
	cliApp := &cli.App{
		Name:    "bgblend",
		Usage:   "replace the background of a video stream using a segmentation model",
		Version: fmt.Sprintf("%s (%s)", Version, GitCommit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Value:   "config.json",
				Usage:   "load configuration from `FILE`",
			},
			&cli.StringFlag{Name: flagInput, Usage: "read frames from image sequence `DIR`"},
			&cli.StringFlag{Name: flagSnapshot, Usage: "poll frames from camera snapshot `URL`"},
			&cli.StringFlag{Name: flagOutput, Usage: "write composited frames to `DIR`"},
			&cli.StringFlag{Name: flagListen, Usage: "serve MJPEG stream on `ADDR`, e.g. :8080"},
			&cli.StringFlag{Name: flagModelURL, Usage: "segmentation service base `URL`"},
			&cli.StringFlag{Name: flagLogMode, Usage: "debug or release"},
			&cli.IntFlag{Name: flagMaxFrames, Usage: "stop after `N` frames, 0 means until the stream ends"},
		},
		Action: run,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "process the stream until it ends or is interrupted",
				Action: run,
			},
			{
				Name:   "check",
				Usage:  "validate configuration, background image and model labels without processing frames",
				Action: check,
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "bgblend:", err)
		os.Exit(1)
	}
}

// loadSettings 读取配置文件，命令行参数优先
func loadSettings(c *cli.Context) (*config.Settings, error) {
	s, err := config.Load(c.String(flagConfig))
	if err != nil {
		return nil, err
	}
	if c.IsSet(flagInput) {
		s.InputDir, s.SnapshotURL = c.String(flagInput), ""
	}
	if c.IsSet(flagSnapshot) {
		s.SnapshotURL = c.String(flagSnapshot)
	}
	if c.IsSet(flagOutput) {
		s.OutputDir = c.String(flagOutput)
	}
	if c.IsSet(flagListen) {
		s.Listen = c.String(flagListen)
	}
	if c.IsSet(flagModelURL) {
		s.SegmenterURL = c.String(flagModelURL)
	}
	if c.IsSet(flagLogMode) {
		s.LogMode = c.String(flagLogMode)
	}
	if c.IsSet(flagMaxFrames) {
		s.MaxFrames = c.Int(flagMaxFrames)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	if err := util.InitLogger(s.LogMode); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	if s.LogMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	return s, nil
}

func run(c *cli.Context) error {
	s, err := loadSettings(c)
	if err != nil {
		return err
	}
	defer util.Sync()

	logger := util.Logger
	logger.Info("starting bgblend",
		zap.String("version", Version),
		zap.String("git_commit", GitCommit),
		zap.String("model_id", s.ModelID),
		zap.Strings("target_labels", s.TargetLabels))

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, s, app.Deps{Logger: logger})
	if err != nil {
		logger.Error("build pipeline failed", zap.Error(err))
		return err
	}
	logger.Info("pipeline ready", zap.String("run_id", a.Orchestrator.RunID()))

	if err := a.Run(ctx); err != nil {
		if pipeline.IsFatal(err) {
			logger.Error("pipeline stopped on fatal error", zap.Error(err))
		}
		return err
	}
	return nil
}

func check(c *cli.Context) error {
	s, err := loadSettings(c)
	if err != nil {
		return err
	}
	defer util.Sync()

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	if err := app.Check(ctx, s, nil); err != nil {
		if errors.Is(err, config.ErrInvalidConfiguration) {
			util.Logger.Error("configuration rejected", zap.Error(err))
		}
		return err
	}
	util.Logger.Info("configuration ok", zap.String("config", c.String(flagConfig)))
	return nil
}
