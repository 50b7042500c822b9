// Package skerr provides functions related to error reporting and stack
// traces. Errors wrapped by this package remember where they were wrapped, and
// the file:line of each wrap site is appended to the error message.
package skerr

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
)

// StackTrace identifies a filename (base filename only) and line number.
type StackTrace struct {
	File string
	Line int
}

func (st *StackTrace) String() string {
	return fmt.Sprintf("%s:%d", st.File, st.Line)
}

// CallStack returns a slice of StackTrace representing the current stack trace.
// The lines returned start at the depth specified by startAt: 0 means the call
// to CallStack, 1 means CallStack's caller, 2 means CallStack's caller's caller
// and so on. height means how many lines to include, counting deeper into the
// stack, with zero meaning to include all stack frames.
func CallStack(height, startAt int) []StackTrace {
	stack := []StackTrace{}
	for i := 0; ; i++ {
		_, file, line, ok := runtime.Caller(startAt + i)
		if !ok {
			break
		}
		stack = append(stack, StackTrace{File: filepath.Base(file), Line: line})
		if height > 0 && len(stack) >= height {
			break
		}
	}
	return stack
}

// ErrorWithContext contains an original error with context info and a stack
// trace. It implements the error interface.
type ErrorWithContext struct {
	// Wrapped is the original error. Never nil.
	Wrapped error
	// CallStack is the stack trace at the point Wrap was first called.
	CallStack []StackTrace
	// Context is additional info added with Wrapf, outermost first.
	Context []string
}

// Error returns the context, the wrapped error message and the stack trace.
func (err *ErrorWithContext) Error() string {
	var out strings.Builder
	for _, c := range err.Context {
		out.WriteString(c)
		out.WriteString(": ")
	}
	out.WriteString(err.Wrapped.Error())
	out.WriteString(". At")
	for _, st := range err.CallStack {
		out.WriteString(" ")
		out.WriteString(st.String())
	}
	return out.String()
}

// Unwrap allows errors.Is and errors.As to see the original error.
func (err *ErrorWithContext) Unwrap() error {
	return err.Wrapped
}

func wrap(err error, context string) error {
	if existing, ok := err.(*ErrorWithContext); ok {
		copied := &ErrorWithContext{
			Wrapped:   existing.Wrapped,
			CallStack: existing.CallStack,
			Context:   existing.Context,
		}
		if context != "" {
			copied.Context = append([]string{context}, existing.Context...)
		}
		return copied
	}
	rv := &ErrorWithContext{
		Wrapped:   err,
		CallStack: CallStack(5, 3),
	}
	if context != "" {
		rv.Context = []string{context}
	}
	return rv
}

// Wrap adds stack trace info to err, if not already present. The return value
// will be of type ErrorWithContext. Returns nil if err is nil.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return wrap(err, "")
}

// Wrapf adds context and stack trace info to err. Existing stack trace info
// will be preserved. The return value will be of type ErrorWithContext.
// Example: skerr.Wrapf(err, "When writing row %d", rowNum)
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return wrap(err, fmt.Sprintf(format, args...))
}

// Fmt is equivalent to Wrap(fmt.Errorf(...)).
func Fmt(format string, args ...interface{}) error {
	return &ErrorWithContext{
		Wrapped:   fmt.Errorf(format, args...),
		CallStack: CallStack(5, 2),
	}
}

// Unwrap returns the original error if err is ErrorWithContext, otherwise
// just returns err.
func Unwrap(err error) error {
	if e, ok := err.(*ErrorWithContext); ok {
		return e.Wrapped
	}
	return err
}
