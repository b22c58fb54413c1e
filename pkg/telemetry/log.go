package telemetry

import (
	"fmt"
	"io"
	"log"
	"time"
)

type Status int

const (
	Checked Status = iota
	Performed
	TargetFailed
	Cancelled
	Migrated
	Withdrawn
)

func (s Status) String() string {
	switch s {
	case Checked:
		return "checked"
	case Performed:
		return "performed"
	case TargetFailed:
		return "target_failed"
	case Cancelled:
		return "cancelled"
	case Migrated:
		return "migrated"
	case Withdrawn:
		return "withdrawn"
	default:
		return "unknown"
	}
}

const (
	ServiceName    = "keeper-registry"
	LogPkgStdFlags = log.Ldate | log.Ltime | log.Lshortfile
)

func WrapLogger(logger *log.Logger, ns string) *log.Logger {
	return log.New(logger.Writer(), fmt.Sprintf("[%s | %s] ", ServiceName, ns), LogPkgStdFlags)
}

func WrapTelemetryLogger(logger *Logger, ns string) *Logger {
	baseLogger := log.New(logger.Writer(), fmt.Sprintf("[%s | %s] ", ServiceName, ns), LogPkgStdFlags)

	return &Logger{
		Logger:    baseLogger,
		collector: logger.collector,
	}
}

// Logger is a component logger that additionally writes one JSON line per
// upkeep status change to a collector.
type Logger struct {
	*log.Logger
	collector io.Writer
}

func NewTelemetryLogger(logger *log.Logger, collector io.Writer) *Logger {
	if collector == nil {
		collector = io.Discard
	}

	return &Logger{
		Logger:    logger,
		collector: collector,
	}
}

func (l *Logger) Collect(key string, block uint64, status Status) error {
	_, err := l.collector.Write([]byte(fmt.Sprintf(`{"key":"%s","block":%d,"status":"%s","time":"%s"}`+"\n", key, block, status, time.Now().Format(time.RFC3339Nano))))

	return err
}

func (l *Logger) GetLogger() *log.Logger {
	return l.Logger
}
