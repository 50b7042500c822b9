/*
	A wrapper around the os/exec package that supports timeouts and testing.

	Example usage:

	Simple command with argument:
	err := exec.Run(ctx, &exec.Command{
		Name: "touch",
		Args: []string{file},
	})

	More complicated example:
	output := bytes.Buffer{}
	err := exec.Run(ctx, &exec.Command{
		Name: "cargo",
		Args: []string{"build"},
		// Set environment:
		Env: []string{"CARGO_TERM_COLOR=never"},
		// Set working directory:
		Dir: projectDir,
		// Capture output:
		CombinedOutput: &output,
		// Set a timeout:
		Timeout: 10*time.Minute,
	})

	Inject a Run function for testing:
	mock := exec.CommandCollector{}
	ctx := exec.NewContext(ctx, mock.Run)
	TestCodeCallingRun(ctx)
	require.Equal(t, "touch /tmp/file", exec.DebugString(mock.Commands()[0]))

	Long running processes whose stdout is consumed while they run are started
	with Start, which always launches a real process:
	proc, err := exec.Start(ctx, &exec.Command{Name: "cargo", Args: args})
	defer proc.Kill()
	... read proc.Stdout ...
	err = proc.Wait()
*/
package exec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	osexec "os/exec"
	"strings"
	"sync"
	"time"

	"github.com/kballard/go-shellquote"
	"go.benchtrack.dev/infra/go/skerr"
	"go.benchtrack.dev/infra/go/sklog"
)

// WriteLog implements the io.Writer interface and writes to the given log function.
type WriteLog struct {
	LogFunc func(format string, args ...interface{})
}

func (wl WriteLog) Write(p []byte) (n int, err error) {
	wl.LogFunc("%s", string(p))
	return len(p), nil
}

var (
	WriteInfoLog  = WriteLog{LogFunc: sklog.Infof}
	WriteErrorLog = WriteLog{LogFunc: sklog.Errorf}
)

type Command struct {
	// Name of the command, as passed to osexec.Command. Can be the path to a binary or the
	// name of a command that osexec.Lookpath can find.
	Name string
	// Arguments of the command, not including Name.
	Args []string
	// The environment of the process. If nil, the current process's environment is used.
	Env []string
	// If Env is non-nil, adds the current process's PATH to Env.
	InheritPath bool
	// The working directory of the command. If nil, runs in the current process's current
	// directory.
	Dir string
	// See docs for osexec.Cmd.Stdin.
	Stdin io.Reader
	// If true, duplicates stdout of the command to WriteInfoLog.
	LogStdout bool
	// Sends the stdout of the command to this Writer, e.g. os.File or bytes.Buffer. Ignored
	// by Start, which always pipes stdout.
	Stdout io.Writer
	// If true, duplicates stderr of the command to WriteErrorLog.
	LogStderr bool
	// Sends the stderr of the command to this Writer, e.g. os.File or bytes.Buffer.
	Stderr io.Writer
	// Sends the combined stdout and stderr of the command to this Writer, in addition to
	// Stdout and Stderr. Only one goroutine will write at a time. Ignored by Start.
	CombinedOutput io.Writer
	// Time limit to wait for the command to finish. (Starts when Wait is called.) No limit if
	// not specified.
	Timeout time.Duration
}

// ExitError is returned when a command ran but exited with a non-zero status.
type ExitError struct {
	// Command line that was run.
	Command string
	// ExitCode of the process, -1 if it was killed by a signal.
	ExitCode int
	// Stderr is whatever the command printed to stderr, if it was captured.
	Stderr string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("command %q exited with code %d", e.Command, e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + strings.TrimSpace(e.Stderr)
	}
	return msg
}

// ErrTimeout is wrapped by the error returned when a command exceeds its Timeout.
var ErrTimeout = errors.New("command timed out")

// DebugString returns the command line of the Command, without the environment.
func DebugString(command *Command) string {
	return strings.TrimSpace(command.Name + " " + strings.Join(command.Args, " "))
}

// ParseCommand splits commandLine with shell quoting rules; the first word is
// the program name and the rest are arguments. Nothing is expanded.
func ParseCommand(commandLine string) (Command, error) {
	words, err := shellquote.Split(commandLine)
	if err != nil {
		return Command{}, skerr.Wrapf(err, "parsing %q", commandLine)
	}
	if len(words) == 0 {
		return Command{}, skerr.Fmt("empty command line")
	}
	return Command{Name: words[0], Args: words[1:]}, nil
}

// Given io.Writers or nils, return a single writer that writes to all, or nil if no non-nil
// writers. Does not handle non-nil interface containing a nil value.
func squashWriters(writers ...io.Writer) io.Writer {
	nonNil := []io.Writer{}
	for _, writer := range writers {
		if writer != nil {
			nonNil = append(nonNil, writer)
		}
	}
	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	default:
		return io.MultiWriter(nonNil...)
	}
}

func createCmd(command *Command) *osexec.Cmd {
	cmd := osexec.Command(command.Name, command.Args...)
	if len(command.Env) != 0 {
		cmd.Env = command.Env
		if command.InheritPath {
			cmd.Env = append(cmd.Env, "PATH="+os.Getenv("PATH"))
		}
	}
	cmd.Dir = command.Dir
	cmd.Stdin = command.Stdin
	var stdoutLog io.Writer
	if command.LogStdout {
		stdoutLog = WriteInfoLog
	}
	var stderrLog io.Writer
	if command.LogStderr {
		stderrLog = WriteErrorLog
	}
	cmd.Stdout = squashWriters(stdoutLog, command.Stdout, command.CombinedOutput)
	cmd.Stderr = squashWriters(stderrLog, command.Stderr, command.CombinedOutput)
	return cmd
}

func start(cmd *osexec.Cmd) error {
	if len(cmd.Env) == 0 {
		sklog.Debugf("Executing %s", strings.Join(cmd.Args, " "))
	} else {
		sklog.Debugf("Executing %s with env %s",
			strings.Join(cmd.Args, " "), strings.Join(cmd.Env, " "))
	}
	if err := cmd.Start(); err != nil {
		return skerr.Wrapf(err, "unable to start command %s", strings.Join(cmd.Args, " "))
	}
	return nil
}

// asExitError converts an *osexec.ExitError into an *ExitError.
func asExitError(err error, cmd *osexec.Cmd, stderr string) error {
	var exitErr *osexec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{
			Command:  strings.Join(cmd.Args, " "),
			ExitCode: exitErr.ExitCode(),
			Stderr:   stderr,
		}
	}
	return err
}

func wait(command *Command, cmd *osexec.Cmd, kill func()) error {
	if command.Timeout == 0 {
		return cmd.Wait()
	}
	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()
	select {
	case <-time.After(command.Timeout):
		kill()
		<-done // allow goroutine to exit
		sklog.Errorf("Command killed since it took longer than %f secs", command.Timeout.Seconds())
		return skerr.Wrapf(ErrTimeout, "%s took longer than %s", strings.Join(cmd.Args, " "), command.Timeout)
	case err := <-done:
		return err
	}
}

// DefaultRun can be passed to NewContext to get the default behavior, which
// runs the command as a real subprocess.
func DefaultRun(ctx context.Context, command *Command) error {
	cmd := createCmd(command)
	var stderr bytes.Buffer
	if command.Stderr == nil && command.CombinedOutput == nil {
		cmd.Stderr = squashWriters(cmd.Stderr, &stderr)
	}
	if err := start(cmd); err != nil {
		return err
	}
	stop := killOnDone(ctx, cmd)
	defer stop()
	if err := wait(command, cmd, func() { killProcess(cmd) }); err != nil {
		err = asExitError(err, cmd, stderr.String())
		sklog.Debugf("Command exited with %s: %s", err, strings.Join(cmd.Args, " "))
		return err
	}
	return nil
}

// killOnDone kills the process if ctx is cancelled before the returned func is
// called.
func killOnDone(ctx context.Context, cmd *osexec.Cmd) func() {
	stopCh := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			killProcess(cmd)
		case <-stopCh:
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() { close(stopCh) })
	}
}

type contextKeyType string

const contextKey contextKeyType = "execContext"

type execContext struct {
	runFn func(context.Context, *Command) error
}

// NewContext returns a context.Context instance which uses the given function
// to run Commands.
func NewContext(ctx context.Context, runFn func(context.Context, *Command) error) context.Context {
	return context.WithValue(ctx, contextKey, &execContext{runFn: runFn})
}

func getCtx(ctx context.Context) *execContext {
	if v := ctx.Value(contextKey); v != nil {
		return v.(*execContext)
	}
	return &execContext{runFn: DefaultRun}
}

// Run runs command and waits for it to finish. If any failure, returns non-nil. If a timeout was
// specified, returns an error once the command has exceeded that timeout.
func Run(ctx context.Context, command *Command) error {
	return getCtx(ctx).runFn(ctx, command)
}

// RunCommand executes the given command and returns its stdout. The error, if
// any, includes the command line and its stderr.
func RunCommand(ctx context.Context, command *Command) (string, error) {
	var stdout, stderr bytes.Buffer
	command.Stdout = squashWriters(command.Stdout, &stdout)
	command.Stderr = squashWriters(command.Stderr, &stderr)
	if err := Run(ctx, command); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) && exitErr.Stderr == "" {
			exitErr.Stderr = stderr.String()
		}
		return stdout.String(), skerr.Wrapf(err, "running %q in %q", DebugString(command), command.Dir)
	}
	return stdout.String(), nil
}

// RunCwd executes the given command in the given directory. Returns stdout.
func RunCwd(ctx context.Context, cwd string, args ...string) (string, error) {
	command := &Command{
		Name: args[0],
		Args: args[1:],
		Dir:  cwd,
	}
	return RunCommand(ctx, command)
}

// Process is a running command whose stdout is read while it runs. Kill must
// be called on every exit path, typically with defer; it is a no-op once Wait
// has returned.
type Process struct {
	// Stdout of the process. Reads block until output is available and return
	// io.EOF once the process closes its stdout.
	Stdout io.Reader

	command  *Command
	cmd      *osexec.Cmd
	stop     func()
	mtx      sync.Mutex
	finished bool
}

// Start launches command with its stdout piped to Process.Stdout. Stderr goes
// to command.Stderr, or to this process's stderr if that is nil. The whole
// process group is killed if ctx is cancelled before Wait returns.
func Start(ctx context.Context, command *Command) (*Process, error) {
	c := *command
	c.Stdout = nil
	c.CombinedOutput = nil
	cmd := createCmd(&c)
	cmd.Stdout = nil
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	setProcessGroup(cmd)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, skerr.Wrapf(err, "creating stdout pipe for %s", DebugString(command))
	}
	if err := start(cmd); err != nil {
		return nil, err
	}
	return &Process{
		Stdout:  stdout,
		command: &c,
		cmd:     cmd,
		stop:    killOnDone(ctx, cmd),
	}, nil
}

// Pid returns the process id.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Wait waits for the process to exit. All reads from Stdout must be done
// before Wait is called. A non-zero exit status is reported as *ExitError.
func (p *Process) Wait() error {
	defer p.stop()
	err := wait(p.command, p.cmd, func() { killProcess(p.cmd) })
	p.mtx.Lock()
	p.finished = true
	p.mtx.Unlock()
	if err != nil {
		return skerr.Wrap(asExitError(err, p.cmd, ""))
	}
	return nil
}

// Kill forcibly terminates the process and every process in its group, then
// reaps it. Does nothing if Wait has already returned.
func (p *Process) Kill() {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	if p.finished {
		return
	}
	p.finished = true
	p.stop()
	sklog.Warningf("Killing %s (pid %d)", DebugString(p.command), p.cmd.Process.Pid)
	killProcess(p.cmd)
	_ = p.cmd.Wait()
}
