// timer makes timing operations easier.
package timer

import (
	"time"

	"github.com/hako/durafmt"
	"go.benchtrack.dev/infra/go/sklog"
)

// Timer is for timing events. When finished the duration is reported
// via sklog.
//
// The standard way to use Timer is at the top of the func you
// want to measure:
//
//	defer timer.New("benchmark run").Stop()
type Timer struct {
	Begin time.Time
	Name  string
}

func New(name string) *Timer {
	return &Timer{
		Begin: time.Now(),
		Name:  name,
	}
}

// Elapsed returns the time since the Timer was created.
func (t Timer) Elapsed() time.Duration {
	return time.Since(t.Begin)
}

// Stop logs the elapsed time and returns it.
func (t Timer) Stop() time.Duration {
	d := t.Elapsed()
	sklog.Infof("%s took %s", t.Name, Format(d))
	return d
}

// Format renders a duration for humans, e.g. "1 hour 3 minutes 20 seconds",
// dropping fractions of a second.
func Format(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return durafmt.Parse(d.Truncate(time.Second)).String()
}
