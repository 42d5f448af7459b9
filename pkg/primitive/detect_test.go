package primitive

import (
	"bytes"
	"log/slog"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/jzx17/condprobe/internal/errors"
)

const detectChildEnv = "CONDPROBE_DETECT_CHILD"

// lockWaitChild configures detection twice, then blocks a second goroutine
// on a held Mutex past the wait limit. Only the first call's limit applies
// and only the second call's handler is used, which aborts the process.
func lockWaitChild(t *testing.T) {
	quiet := perrors.NewAbortHandler(&perrors.AbortConfig{
		Logger: slog.New(slog.NewTextHandler(os.Stdout, nil)),
		Output: os.Stdout,
		Exit:   func(int) {},
	})
	require.True(t, ConfigureDetection(DetectionConfig{
		LockWaitLimit: 50 * time.Millisecond,
		Report:        os.Stdout,
		Handler:       quiet,
	}))

	abort := perrors.NewAbortHandler(&perrors.AbortConfig{
		Logger: slog.New(slog.NewTextHandler(os.Stderr, nil)),
		Output: os.Stderr,
	})
	require.False(t, ConfigureDetection(DetectionConfig{
		LockWaitLimit: time.Hour,
		Report:        os.Stderr,
		Handler:       abort,
	}))

	var m Mutex
	require.NoError(t, m.Init())
	require.NoError(t, m.Lock())

	go func() {
		_ = m.Lock()
	}()

	time.Sleep(10 * time.Second)
}

func TestDetection_LockWaitAborts(t *testing.T) {
	if os.Getenv(detectChildEnv) == "1" {
		lockWaitChild(t)
		return
	}
	if testing.Short() {
		t.Skip("spawns a child process")
	}

	cmd := exec.Command(os.Args[0], "-test.run=^TestDetection_LockWaitAborts$")
	cmd.Env = append(os.Environ(), detectChildEnv+"=1")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr, "child exited cleanly:\n%s", stdout.String())
	assert.Equal(t, perrors.ExitAbort, exitErr.ExitCode(), "stderr:\n%s", stderr.String())

	report := stderr.String()
	assert.Contains(t, report, "POTENTIAL DEADLOCK")
	assert.Contains(t, report, "fatal synchronization error")
	assert.Contains(t, report, "op=lock_wait")
	assert.Contains(t, report, "limit=50ms")
	assert.NotContains(t, stdout.String(), "POTENTIAL DEADLOCK")
}
