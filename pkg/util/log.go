package util

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var glog *zap.Logger

func init() {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	var err error
	glog, err = cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		panic(err)
	}
}

func Info(msg string, fields ...zap.Field) {
	glog.Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	glog.Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	glog.Error(msg, fields...)
}

func Fatal(msg string, fields ...zap.Field) {
	glog.Fatal(msg, fields...)
}
