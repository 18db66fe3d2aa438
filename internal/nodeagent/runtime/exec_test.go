package runtime

import (
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExecBackendSpawnAndWait(t *testing.T) {
	b := NewExecBackend()
	require.Equal(t, "exec", b.Name())

	var stdout bytes.Buffer
	spec := TaskSpec{
		GlobalID: 0,
		Argv:     []string{"/bin/echo", "hello"},
		Env:      os.Environ(),
		UID:      uint32(os.Getuid()),
		GID:      uint32(os.Getgid()),
		Stdout:   &stdout,
	}

	handle, err := b.Spawn(context.Background(), spec)
	require.NoError(t, err)
	require.Positive(t, handle.Pid())

	code, signaled, err := handle.Wait()
	require.NoError(t, err)
	require.False(t, signaled)
	require.Equal(t, 0, code)
	require.Contains(t, stdout.String(), "hello")
}

func TestExecBackendRejectsEmptyArgv(t *testing.T) {
	b := NewExecBackend()
	_, err := b.Spawn(context.Background(), TaskSpec{})
	require.Error(t, err)
}

func TestWrapWithUlimitAppliesKnownFlags(t *testing.T) {
	limits := []RlimitSpec{
		{Name: "nofile", Soft: 1024},
		{Name: "unknown", Soft: 1},
		{Name: "cpu", Soft: rlimitInfinity},
	}
	out := wrapWithUlimit(limits, []string{"/bin/sh", "-c", "true"})
	require.Contains(t, out, "ulimit -S -n 1024")
	require.Contains(t, out, "ulimit -S -t unlimited")
	require.NotContains(t, out, "unknown")
	require.Contains(t, out, "exec '/bin/sh' '-c' 'true'")
}

func TestShellQuoteEscapesSingleQuotes(t *testing.T) {
	require.Equal(t, `'it'\''s'`, shellQuote("it's"))
}
