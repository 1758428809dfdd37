package log

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

type Level = logrus.Level

const (
	Debug = logrus.DebugLevel
	Info  = logrus.InfoLevel
	Warn  = logrus.WarnLevel
	Error = logrus.ErrorLevel
)

var std = New()

// New creates a logger writing unstructured lines to stderr.
func New() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(Info)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		DisableQuote:    true,
		DisableColors:   true,
		TimestampFormat: "15:04:05.000",
	})
	return l
}

// SetDebug switches between debug and info level.
func SetDebug(debug bool) {
	if debug {
		std.SetLevel(Debug)
	} else {
		std.SetLevel(Info)
	}
}

func SetLevel(level Level) { std.SetLevel(level) }

func SetOutput(w io.Writer) { std.SetOutput(w) }

func IsDebug() bool { return std.IsLevelEnabled(Debug) }

// WithRank returns an entry that tags every line with the worker rank.
func WithRank(rank int) *logrus.Entry {
	return std.WithField("rank", rank)
}

var (
	Debugf = std.Debugf
	Infof  = std.Infof
	Warnf  = std.Warnf
	Errorf = std.Errorf
)
