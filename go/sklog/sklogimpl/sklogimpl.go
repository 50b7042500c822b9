// Package sklogimpl holds the pluggable Logger behind the sklog functions.
// Only sklog and Logger implementations should import it.
package sklogimpl

import (
	"sync"
)

// Severity identifies the level of a log line.
type Severity int

// Severities understood by Logger implementations.
const (
	Debug Severity = iota
	Info
	Warning
	Error
	Fatal
)

// String returns the upper case name of the severity.
func (s Severity) String() string {
	switch s {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warning:
		return "WARNING"
	case Error:
		return "ERROR"
	case Fatal:
		return "FATAL"
	}
	return "UNKNOWN"
}

// Logger is what sklog forwards every call to.
//
// If format is empty the args are formatted with fmt.Sprint, otherwise with
// fmt.Sprintf(format, args...). depth is the number of stack frames between
// the original call site and Log.
type Logger interface {
	Log(depth int, severity Severity, format string, args ...interface{})
	Flush()
}

var (
	mtx    sync.RWMutex
	logger Logger
)

// SetLogger replaces the Logger. Safe to call at any time.
func SetLogger(l Logger) {
	mtx.Lock()
	defer mtx.Unlock()
	logger = l
}

// Log sends the line to the current Logger.
func Log(depth int, severity Severity, format string, args ...interface{}) {
	mtx.RLock()
	l := logger
	mtx.RUnlock()
	if l == nil {
		return
	}
	l.Log(depth+1, severity, format, args...)
}

// Flush flushes the current Logger.
func Flush() {
	mtx.RLock()
	l := logger
	mtx.RUnlock()
	if l != nil {
		l.Flush()
	}
}
