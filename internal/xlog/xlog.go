// Package xlog is the structured logging facade shared by every package in
// the engine: a handful of package-level logrus loggers, a compact custom
// formatter, and a level parsed from configuration rather than hardcoded.
package xlog

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var (
	// Optimizer logs plan-table fill progress and chosen join orders.
	Optimizer *logrus.Logger
	// Engine logs query lifecycle: enumerator/estimator selection, rows emitted.
	Engine *logrus.Logger
)

func init() {
	Optimizer = newLogger(logrus.InfoLevel)
	Engine = newLogger(logrus.InfoLevel)
}

type compactFormatter struct{}

func (compactFormatter) Format(e *logrus.Entry) ([]byte, error) {
	level := strings.ToUpper(e.Level.String())
	if len(level) > 4 {
		level = level[:4]
	}
	msg := fmt.Sprintf("[%s] (%s) %s\n", level, e.Time.Format("15:04:05.000"), e.Message)
	return []byte(msg), nil
}

func newLogger(level logrus.Level) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(compactFormatter{})
	l.SetLevel(level)
	l.SetOutput(os.Stderr)
	return l
}

// SetLevel parses a level name ("debug", "info", "warn", "error") and
// applies it to both package loggers; unrecognized names fall back to Info.
func SetLevel(name string) {
	lvl := parseLevel(name)
	Optimizer.SetLevel(lvl)
	Engine.SetLevel(lvl)
}

func parseLevel(name string) logrus.Level {
	switch strings.ToLower(name) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}
