package skerr

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap_Nil_ReturnsNil(t *testing.T) {
	assert.NoError(t, Wrap(nil))
	assert.NoError(t, Wrapf(nil, "context %d", 1))
}

func TestWrap_RecordsCallSite(t *testing.T) {
	err := Wrap(io.EOF)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EOF. At skerr_test.go:")
	assert.Equal(t, io.EOF, Unwrap(err))
}

func TestWrapf_NestedContext_OutermostFirst(t *testing.T) {
	inner := Wrapf(io.EOF, "reading %s", "run.json")
	outer := Wrapf(inner, "syncing run")
	assert.Contains(t, outer.Error(), "syncing run: reading run.json: EOF. At")

	// The call stack is the one captured by the innermost wrap.
	var ewc *ErrorWithContext
	require.True(t, errors.As(outer, &ewc))
	assert.Equal(t, inner.(*ErrorWithContext).CallStack, ewc.CallStack)
}

func TestWrap_ErrorsIsSeesSentinel(t *testing.T) {
	sentinel := errors.New("already exists")
	err := Wrapf(Wrap(sentinel), "beginning run")
	assert.True(t, errors.Is(err, sentinel))
}

func TestFmt_FormatsMessage(t *testing.T) {
	err := Fmt("exit code %d", 3)
	assert.Contains(t, err.Error(), "exit code 3. At skerr_test.go:")
}
