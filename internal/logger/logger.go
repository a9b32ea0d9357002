package logger

import (
	"os"

	"github.com/church-treasury-core/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger 在 InitLogger 之前为空操作日志，测试中也可直接使用
var Logger = zap.NewNop()

// InitLogger 根据 config.Cfg.Log 初始化全局日志
func InitLogger() error {
	cfg := config.GetConfig().Log

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	var encoder zapcore.Encoder
	if cfg.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	level := parseLevel(cfg.Level)

	var core zapcore.Core
	switch cfg.Output {
	case "file":
		core = zapcore.NewCore(encoder, zapcore.AddSync(rotatingWriter(cfg)), level)
	case "both":
		core = zapcore.NewTee(
			zapcore.NewCore(encoder, zapcore.AddSync(rotatingWriter(cfg)), level),
			zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level),
		)
	default:
		core = zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level)
	}

	Logger = zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)).
		With(zap.String("service", config.GetConfig().App.Name))
	return nil
}

func rotatingWriter(cfg config.LogConfig) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Sync 刷新缓冲的日志
func Sync() {
	if Logger != nil {
		_ = Logger.Sync()
	}
}
