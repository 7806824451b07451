// Package logger owns the process-wide zap instance. Init wires it once at
// startup; everything after that receives *zap.Logger through constructors,
// so only main and the earliest bootstrap code touch the package global.
package logger

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the root logger. Nil until Init has run.
var Log *zap.Logger

var initOnce sync.Once

// Init builds the root logger at the given level and attaches the fields to
// every entry it emits (service name, environment). Repeat calls keep the
// first configuration.
func Init(level zapcore.Level, fields ...zap.Field) error {
	initOnce.Do(func() {
		base := zap.Must(newConfig(level).Build()).With(fields...)
		Log = zap.New(base.Core(), zap.AddCaller())
	})
	if Log == nil {
		return errors.New("logger not initialized")
	}
	return nil
}

// newConfig is the production config with console output: ISO8601
// timestamps, colored levels, short caller paths.
func newConfig(level zapcore.Level) zap.Config {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "timestamp"
	enc.CallerKey = "caller"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	enc.EncodeCaller = zapcore.ShortCallerEncoder
	enc.EncodeDuration = zapcore.SecondsDurationEncoder

	return zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Encoding:         "console",
		EncoderConfig:    enc,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}
}
