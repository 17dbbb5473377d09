package config

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger builds the process logger. In dev it is a human-readable
// console logger; in prod it emits JSON. When LogFile is set, output
// goes through lumberjack rotation instead of stderr.
func NewLogger(cfg *Config) *zap.Logger {
	var encoder zapcore.Encoder
	level := zap.InfoLevel
	if cfg.Env == "dev" {
		encCfg := zap.NewDevelopmentEncoderConfig()
		encoder = zapcore.NewConsoleEncoder(encCfg)
		level = zap.DebugLevel
	} else {
		encCfg := zap.NewProductionEncoderConfig()
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	var sink zapcore.WriteSyncer
	if cfg.LogFile != "" {
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    100, // MB
			MaxBackups: 5,
			MaxAge:     30, // days
		})
	} else {
		sink = zapcore.AddSync(os.Stderr)
	}

	return zap.New(zapcore.NewCore(encoder, sink, level))
}
