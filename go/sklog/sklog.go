// Package sklog is the logging front end used by every bench package.
//
// Nothing here buffers: each call is handed straight to the Logger installed
// in sklogimpl. Until the CLI picks something else, lines go to stderr
// without Debug output.
package sklog

import (
	"os"

	"go.benchtrack.dev/infra/go/sklog/sklogimpl"
	"go.benchtrack.dev/infra/go/sklog/stdlogging"
)

func init() {
	UseStderr(false)
}

// SetLogger routes all subsequent log lines to l.
func SetLogger(l sklogimpl.Logger) {
	sklogimpl.SetLogger(l)
}

// UseStderr logs to stderr. Debug lines are kept only if verbose.
func UseStderr(verbose bool) {
	sklogimpl.SetLogger(stdlogging.New(os.Stderr, verbose))
}

// UseNop silences logging entirely.
func UseNop() {
	sklogimpl.SetLogger(stdlogging.NewNop())
}

func Debug(msg ...interface{}) { sklogimpl.Log(1, sklogimpl.Debug, "", msg...) }

func Debugf(format string, v ...interface{}) { sklogimpl.Log(1, sklogimpl.Debug, format, v...) }

func Info(msg ...interface{}) { sklogimpl.Log(1, sklogimpl.Info, "", msg...) }

func Infof(format string, v ...interface{}) { sklogimpl.Log(1, sklogimpl.Info, format, v...) }

func Warning(msg ...interface{}) { sklogimpl.Log(1, sklogimpl.Warning, "", msg...) }

func Warningf(format string, v ...interface{}) { sklogimpl.Log(1, sklogimpl.Warning, format, v...) }

func Error(msg ...interface{}) { sklogimpl.Log(1, sklogimpl.Error, "", msg...) }

func Errorf(format string, v ...interface{}) { sklogimpl.Log(1, sklogimpl.Error, format, v...) }

// ErrorfWithDepth is Errorf attributed to a caller depth frames further up,
// for helpers that log on behalf of whoever called them.
func ErrorfWithDepth(depth int, format string, v ...interface{}) {
	sklogimpl.Log(1+depth, sklogimpl.Error, format, v...)
}

// Fatal logs and then exits the process.
func Fatal(msg ...interface{}) { sklogimpl.Log(1, sklogimpl.Fatal, "", msg...) }

// Fatalf logs and then exits the process.
func Fatalf(format string, v ...interface{}) { sklogimpl.Log(1, sklogimpl.Fatal, format, v...) }

// Flush should be called before the process exits.
func Flush() {
	sklogimpl.Flush()
}
