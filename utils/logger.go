package utils

import (
	"context"
	"io"
	"os"

	"github.com/CharellKing/ela-reindex/config"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var logger = newLogger(os.Stdout, log.InfoLevel)

func newLogger(out io.Writer, level log.Level) *log.Logger {
	l := &log.Logger{
		Out:       out,
		Formatter: &log.JSONFormatter{},
		Hooks:     make(log.LevelHooks),
		Level:     level,
	}
	l.SetReportCaller(true)
	return l
}

func logOutput(logFile string) io.Writer {
	switch logFile {
	case "", "stdout":
		return os.Stdout
	case "stderr":
		return os.Stderr
	default:
		return &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    100,
			MaxAge:     14,
			MaxBackups: 10,
		}
	}
}

func InitLogger(cfg *config.Config) {
	levelMap := map[string]log.Level{
		"debug": log.DebugLevel,
		"info":  log.InfoLevel,
		"warn":  log.WarnLevel,
		"error": log.ErrorLevel,
	}

	level, ok := levelMap[cfg.Level]
	if !ok {
		level = log.InfoLevel
	}
	logger = newLogger(logOutput(cfg.LogFile), level)
}

// SetLoggerOutput redirects the package logger, mostly for tests.
func SetLoggerOutput(out io.Writer) {
	logger.SetOutput(out)
}

func GetLogger(ctx context.Context) *log.Entry {
	entry := log.NewEntry(logger)
	if ctx == nil {
		return entry
	}

	ctxKeyMap := map[CtxKey]func(ctx context.Context) string{
		CtxKeyESVersion:   GetCtxKeyESVersion,
		CtxKeyTaskName:    GetCtxKeyTaskName,
		CtxKeyTaskID:      GetCtxKeyTaskID,
		CtxKeyTaskAction:  GetCtxKeyTaskAction,
		CtxKeySourceIndex: GetCtxKeySourceIndex,
		CtxKeyTargetIndex: GetCtxKeyTargetIndex,
		CtxKeyJobHandle:   GetCtxKeyJobHandle,
	}
	for key, ctxFunc := range ctxKeyMap {
		value := ctx.Value(key)
		if lo.IsNotEmpty(value) {
			entry = entry.WithField(string(key), ctxFunc(ctx))
		}
	}

	if GetCtxKeyDryRun(ctx) {
		entry = entry.WithField(string(CtxKeyDryRun), true)
	}
	return entry
}
