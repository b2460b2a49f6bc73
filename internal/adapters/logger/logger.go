package logger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Logger implements the ports.Logger interface on top of logrus.
type Logger struct {
	entry *logrus.Entry
}

// Config controls the logrus setup.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json or text
	Output     string // stdout, stderr, or a file path
	MaxAgeDays int    // Retention for file output; 0 disables rotation
}

// New creates a configured logrus-backed logger.
func New(cfg Config) (*Logger, error) {
	l := logrus.New()
	l.SetReportCaller(true)

	level := strings.ToLower(cfg.Level)
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level '%s'", cfg.Level)
	}
	l.SetLevel(lvl)

	callerPrettyfier := func(f *runtime.Frame) (string, string) {
		file := filepath.Base(f.File)
		return "", fmt.Sprintf("%s:%d", file, f.Line)
	}

	switch cfg.Format {
	case "json", "":
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
			CallerPrettyfier: callerPrettyfier,
		})
	case "text":
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:    true,
			TimestampFormat:  time.RFC3339,
			CallerPrettyfier: callerPrettyfier,
		})
	default:
		return nil, fmt.Errorf("invalid log format '%s'", cfg.Format)
	}

	switch cfg.Output {
	case "stdout", "":
		l.SetOutput(os.Stdout)
	case "stderr":
		l.SetOutput(os.Stderr)
	default:
		// Assume it's a file path
		if cfg.MaxAgeDays > 0 {
			l.SetOutput(&lumberjack.Logger{
				Filename: cfg.Output,
				MaxAge:   cfg.MaxAgeDays,
				MaxSize:  100,
				Compress: true,
			})
		} else {
			file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
			if err != nil {
				return nil, fmt.Errorf("failed to open log file '%s': %w", cfg.Output, err)
			}
			l.SetOutput(file)
		}
	}

	return &Logger{entry: logrus.NewEntry(l)}, nil
}

// mergeFields flattens the variadic fields maps into a single logrus.Fields.
func mergeFields(fields []map[string]interface{}) logrus.Fields {
	merged := logrus.Fields{}
	for _, m := range fields {
		for k, v := range m {
			merged[k] = v
		}
	}
	return merged
}

func (l *Logger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.entry.WithFields(mergeFields(fields)).Debug(msg)
}

func (l *Logger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.entry.WithFields(mergeFields(fields)).Info(msg)
}

func (l *Logger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.entry.WithFields(mergeFields(fields)).Warn(msg)
}

func (l *Logger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	entry := l.entry.WithFields(mergeFields(fields))
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Error(msg)
}
