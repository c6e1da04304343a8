// Package notify is the single channel through which components tell the
// user about outcomes and failures.
package notify

import (
	"log/slog"
)

type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelError
)

type Notice struct {
	Level   Level
	Message string
	Err     error
}

type Notifier interface {
	Notify(n Notice)
}

// Func adapts a function to Notifier.
type Func func(Notice)

func (f Func) Notify(n Notice) { f(n) }

// Discard drops every notice.
var Discard Notifier = Func(func(Notice) {})

// Log writes notices to a structured logger. Servers use it where there is
// no interactive user to show them to.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Notify(n Notice) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}

	switch n.Level {
	case LevelError:
		logger.Error(n.Message, "error", n.Err)
	default:
		logger.Info(n.Message)
	}
}

func Info(msg string) Notice { return Notice{Level: LevelInfo, Message: msg} }

func Success(msg string) Notice { return Notice{Level: LevelSuccess, Message: msg} }

func Error(msg string, err error) Notice { return Notice{Level: LevelError, Message: msg, Err: err} }
