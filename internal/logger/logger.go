package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// CoreLogger is the default logger for component code.
	CoreLogger *zap.SugaredLogger

	// AccessLogger is the typed logger used on the request path.
	AccessLogger *zap.Logger

	level zap.AtomicLevel
)

func init() {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	log, err := cfg.Build(zap.AddCaller(), zap.AddCallerSkip(1))
	if err == nil {
		CoreLogger = log.Sugar()
		AccessLogger = log.WithOptions(zap.WithCaller(false))
	}
	level = cfg.Level
}

// Init rebuilds the loggers from config. Console mode keeps the development
// encoder; otherwise logs are JSON.
func Init(console bool, verbose bool) error {
	cfg := zap.NewProductionConfig()
	if console {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	log, err := cfg.Build(zap.AddCaller(), zap.AddCallerSkip(1))
	if err != nil {
		return err
	}

	CoreLogger = log.Sugar()
	AccessLogger = log.WithOptions(zap.WithCaller(false))
	level = cfg.Level
	return nil
}

// SetLevel updates the log level of all loggers.
func SetLevel(l zapcore.Level) {
	level.SetLevel(l)
}

func Debugf(template string, args ...any) {
	CoreLogger.Debugf(template, args...)
}

func Infof(template string, args ...any) {
	CoreLogger.Infof(template, args...)
}

func Warnf(template string, args ...any) {
	CoreLogger.Warnf(template, args...)
}

func Errorf(template string, args ...any) {
	CoreLogger.Errorf(template, args...)
}

func Fatalf(template string, args ...any) {
	CoreLogger.Fatalf(template, args...)
}
