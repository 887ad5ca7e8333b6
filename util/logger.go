package util

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Logger = zap.NewNop()

// InitLogger release 模式输出 JSON，其它模式输出带颜色的开发格式
func InitLogger(mode string) error {
	var config zap.Config

	if mode == "release" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	logger, err := config.Build()
	if err != nil {
		return err
	}

	Logger = logger
	return nil
}

func Sync() {
	if Logger != nil {
		_ = Logger.Sync()
	}
}

// Trace 记录一段操作的耗时，用法: defer util.Trace("smooth")()
func Trace(msg string) func() {
	start := time.Now()
	return func() {
		Logger.Info(msg, zap.Duration("cost", time.Since(start)))
	}
}
