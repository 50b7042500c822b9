// Package stdlogging is a sklogimpl.Logger backed by github.com/jcgregorio/logger.
package stdlogging

import (
	"fmt"

	"github.com/jcgregorio/logger"
	"go.benchtrack.dev/infra/go/sklog/sklogimpl"
)

// The frames between the sklog call site and logger's own output call.
const depthDelta = 3

type stdlog struct {
	l *logger.Logger
}

// New returns a Logger writing to dst, usually os.Stderr. Debug lines are
// dropped unless includeDebug is set.
func New(dst logger.SyncWriter, includeDebug bool) sklogimpl.Logger {
	return stdlog{
		l: logger.NewFromOptions(&logger.Options{
			SyncWriter:   dst,
			DepthDelta:   depthDelta,
			IncludeDebug: includeDebug,
		}),
	}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func (discard) Sync() error { return nil }

// NewNop returns a Logger that writes nothing. Fatal still exits.
func NewNop() sklogimpl.Logger {
	return New(discard{}, false)
}

// Log implements sklogimpl.Logger.
func (s stdlog) Log(_ int, severity sklogimpl.Severity, format string, args ...interface{}) {
	msg := fmt.Sprint(args...)
	if format != "" {
		msg = fmt.Sprintf(format, args...)
	}
	switch severity {
	case sklogimpl.Debug:
		s.l.Debug(msg)
	case sklogimpl.Info:
		s.l.Info(msg)
	case sklogimpl.Warning:
		s.l.Warning(msg)
	case sklogimpl.Fatal:
		s.l.Fatal(msg)
	default:
		s.l.Error(msg)
	}
}

// Flush implements sklogimpl.Logger. logger writes synchronously.
func (s stdlog) Flush() {}
