package predict

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell-based runner tests need a POSIX sh")
	}
}

func TestCommandRunner_CollectsBothStreams(t *testing.T) {
	requireShell(t)

	r := NewCommandRunner("sh", "-c", `cat >/dev/null; echo '{"ok":true}'; echo diagnostics >&2`)
	out, err := r.Run(context.Background(), []byte(`[{"stockid":"600000"}]`))
	require.NoError(t, err)
	assert.Equal(t, 0, out.ExitCode)
	assert.Contains(t, out.Stdout, `{"ok":true}`)
	assert.Contains(t, out.Stderr, "diagnostics")
}

func TestCommandRunner_StdinClosedAfterDataset(t *testing.T) {
	requireShell(t)

	// wc -c only terminates once stdin reaches EOF, so a hang here would
	// mean the runner never closed the input.
	r := NewCommandRunner("sh", "-c", `wc -c`)
	out, err := r.Run(context.Background(), []byte("12345"))
	require.NoError(t, err)
	assert.Equal(t, 0, out.ExitCode)
	assert.Contains(t, out.Stdout, "5")
}

func TestCommandRunner_NonzeroExit(t *testing.T) {
	requireShell(t)

	r := NewCommandRunner("sh", "-c", `cat >/dev/null; echo boom >&2; exit 1`)
	out, err := r.Run(context.Background(), []byte("[]"))
	require.NoError(t, err)
	assert.Equal(t, 1, out.ExitCode)
	assert.Contains(t, out.Stderr, "boom")
}

func TestCommandRunner_Timeout(t *testing.T) {
	requireShell(t)

	r := NewCommandRunner("sh", "-c", `sleep 30`)
	r.Timeout = 100 * time.Millisecond

	start := time.Now()
	_, err := r.Run(context.Background(), []byte("[]"))
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	pe := AsError(err)
	require.NotNil(t, pe)
	assert.Equal(t, CodeProcessTimeout, pe.Code)
}

func TestCommandRunner_TimeoutWithOrphanedChildren(t *testing.T) {
	requireShell(t)

	// The background child inherits the output pipes and outlives the shell;
	// the deadline must still bound the run.
	r := NewCommandRunner("sh", "-c", `sleep 30 & sleep 30`)
	r.Timeout = 100 * time.Millisecond

	start := time.Now()
	_, err := r.Run(context.Background(), []byte("[]"))
	require.Error(t, err)
	assert.Less(t, time.Since(start), 10*time.Second)

	pe := AsError(err)
	require.NotNil(t, pe)
	assert.Equal(t, CodeProcessTimeout, pe.Code)
}

func TestCommandRunner_MissingBinary(t *testing.T) {
	r := NewCommandRunner("definitely-not-a-real-binary-12345")
	_, err := r.Run(context.Background(), []byte("[]"))
	require.Error(t, err)
	assert.Nil(t, AsError(err)) // spawn failures are not pipeline errors
}
