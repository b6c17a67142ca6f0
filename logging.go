package main

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// callerHook rewrites the reported caller frame to the first one outside
// logrus and this package, mirroring rahjooh-CryptoTrade/logger's callerHook.
type callerHook struct{}

func (h *callerHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *callerHook) Fire(entry *logrus.Entry) error {
	pcs := make([]uintptr, 16)
	n := runtime.Callers(6, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !more {
			break
		}
		if strings.Contains(frame.Function, "sirupsen/logrus") {
			continue
		}
		entry.Caller = &frame
		break
	}
	return nil
}

// NewLogger builds the process-wide structured logger. Output goes to
// stdout unless cfg.LogFile is set, in which case it rotates via
// lumberjack the way logger.Configure does for file-backed output.
func NewLogger(cfg Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetReportCaller(true)
	logger.AddHook(&callerHook{})

	if lvl, err := logrus.ParseLevel(strings.ToLower(cfg.LogLevel)); err == nil {
		logger.SetLevel(lvl)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
		CallerPrettyfier: func(f *runtime.Frame) (string, string) {
			return "", filepath.Base(f.File) + ":" + strconv.Itoa(f.Line)
		},
	})

	if cfg.LogFile != "" {
		logger.SetOutput(&lumberjack.Logger{
			Filename: cfg.LogFile,
			MaxSize:  100,
			MaxAge:   14,
			Compress: true,
		})
	} else {
		logger.SetOutput(os.Stdout)
	}

	return logger
}

