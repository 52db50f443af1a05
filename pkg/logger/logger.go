// Package logger is the component-tagged slog logger shared by the firmware
// and the host tools. It is never used from interrupt context.
package logger

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

// Component identifies a subsystem for log filtering.
type Component string

const (
	ComponentKeyboard Component = "keyboard"
	ComponentLayout   Component = "layout"
	ComponentStorage  Component = "storage"
	ComponentProtocol Component = "protocol"
	ComponentUSB      Component = "usb"
	ComponentSerial   Component = "serial"
	ComponentDisplay  Component = "display"
	ComponentKeymap   Component = "keymap"
)

var (
	// Default is the logger used by the Log* helpers.
	Default *slog.Logger

	level = new(slog.LevelVar)
	mu    sync.RWMutex
)

func init() {
	level.Set(slog.LevelInfo)
	Default = NewLogger(os.Stderr)
}

// SetLevel sets the minimum level for loggers created by this package.
func SetLevel(l slog.Level) {
	level.Set(l)
}

// Level returns the current minimum level.
func Level() slog.Level {
	return level.Level()
}

// SetLogger replaces the default logger.
func SetLogger(l *slog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	Default = l
}

// NewLogger returns a text logger writing to w at the package level.
func NewLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// ParseLevel maps debug/info/warn/error to a level. Unknown names are info.
func ParseLevel(name string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func current() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return Default
}

// LogDebug logs a debug message with the given component.
func LogDebug(c Component, msg string, args ...any) {
	current().Debug(msg, append([]any{"component", string(c)}, args...)...)
}

// LogInfo logs an info message with the given component.
func LogInfo(c Component, msg string, args ...any) {
	current().Info(msg, append([]any{"component", string(c)}, args...)...)
}

// LogWarn logs a warning message with the given component.
func LogWarn(c Component, msg string, args ...any) {
	current().Warn(msg, append([]any{"component", string(c)}, args...)...)
}

// LogError logs an error message with the given component.
func LogError(c Component, msg string, args ...any) {
	current().Error(msg, append([]any{"component", string(c)}, args...)...)
}
