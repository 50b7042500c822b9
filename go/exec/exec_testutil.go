package exec

// This file contains helpers for working with exec in tests.

import (
	"context"
	"strings"
	"sync"
)

// CommandCollector collects arguments to the Run method for later inspection. Safe for use in
// multiple goroutines as long as the function passed to SetDelegateRun is.
//
// Example usage:
//
//	mock := exec.CommandCollector{}
//	ctx := exec.NewContext(context.Background(), mock.Run)
//	_, err := exec.RunCwd(ctx, repoDir, "git", "rev-parse", "HEAD")
//	assert.Equal(t, "git rev-parse HEAD", exec.DebugString(mock.Commands()[0]))
type CommandCollector struct {
	mutex       sync.RWMutex
	commands    []*Command
	delegateRun func(context.Context, *Command) error
}

// Commands returns a copy of the commands that have been run up to this point.
func (c *CommandCollector) Commands() []*Command {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	result := make([]*Command, len(c.commands))
	copy(result, c.commands)
	return result
}

// CommandLines returns DebugString of every command run so far, in order.
func (c *CommandCollector) CommandLines() []string {
	cmds := c.Commands()
	rv := make([]string, 0, len(cmds))
	for _, cmd := range cmds {
		rv = append(rv, DebugString(cmd))
	}
	return rv
}

// ClearCommands resets the commands seen thus far.
func (c *CommandCollector) ClearCommands() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.commands = nil
}

// SetDelegateRun allows some custom function to be executed when Run is called on this object.
// By default, nothing will happen apart from storing the command.
func (c *CommandCollector) SetDelegateRun(delegateRun func(context.Context, *Command) error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.delegateRun = delegateRun
}

// Run collects command into c and delegates to the function specified by SetDelegateRun.
// Returns nil if SetDelegateRun has not been called. The command will be visible in Commands()
// before the SetDelegateRun function is called.
func (c *CommandCollector) Run(ctx context.Context, command *Command) error {
	c.mutex.Lock()
	c.commands = append(c.commands, command)
	delegateRun := c.delegateRun
	c.mutex.Unlock()
	if delegateRun == nil {
		return nil
	} else {
		return delegateRun(ctx, command)
	}
}

// Scripted is a delegate for CommandCollector.SetDelegateRun. Each command
// line is matched by prefix against the keys of Outputs and Errors (longest
// prefix wins); the matching output is written to the command's Stdout and
// the matching error is returned.
type Scripted struct {
	Outputs map[string]string
	Errors  map[string]error
}

func longestPrefix[V any](m map[string]V, line string) (V, bool) {
	var rv V
	best := -1
	for prefix, v := range m {
		if strings.HasPrefix(line, prefix) && len(prefix) > best {
			rv = v
			best = len(prefix)
		}
	}
	return rv, best >= 0
}

// Run implements the delegate signature.
func (s Scripted) Run(_ context.Context, command *Command) error {
	line := DebugString(command)
	if out, ok := longestPrefix(s.Outputs, line); ok {
		w := squashWriters(command.Stdout, command.CombinedOutput)
		if w != nil {
			if _, err := w.Write([]byte(out)); err != nil {
				return err
			}
		}
	}
	if err, ok := longestPrefix(s.Errors, line); ok {
		return err
	}
	return nil
}
