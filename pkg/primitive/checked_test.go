package primitive

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/jzx17/condprobe/internal/errors"
	"github.com/jzx17/condprobe/pkg/types"
)

// fatalOf runs fn and returns the FatalError it panicked with, or nil
func fatalOf(fn func()) (fatal *perrors.FatalError) {
	defer func() {
		if r := recover(); r != nil {
			fatal, _ = r.(*perrors.FatalError)
		}
	}()
	fn()
	return nil
}

// recordingHandler records fatal contexts and returns, which Checked must
// still treat as fatal
type recordingHandler struct {
	seen []*perrors.ErrorContext
}

func (h *recordingHandler) HandleFatal(errCtx *perrors.ErrorContext) {
	h.seen = append(h.seen, errCtx)
}

func (h *recordingHandler) Name() string {
	return "Recording"
}

func TestChecked_HappyPath(t *testing.T) {
	chk := NewChecked(perrors.NewPanicHandler())

	var m Mutex
	var cv Cond
	assert.Nil(t, fatalOf(func() {
		chk.InitMutex(&m)
		chk.InitCond(&cv)
		chk.Lock(&m)
		chk.Signal(&cv)
		chk.Broadcast(&cv)
		chk.Unlock(&m)
		chk.DestroyCond(&cv)
		chk.DestroyMutex(&m)
	}))
}

func TestChecked_DefaultHandler(t *testing.T) {
	chk := NewChecked(nil)
	assert.Equal(t, "Abort", chk.Handler().Name())
}

func TestChecked_UnlockNotHeld(t *testing.T) {
	chk := NewChecked(perrors.NewPanicHandler()).WithIndex(3)

	var m Mutex
	chk.InitMutex(&m)

	fatal := fatalOf(func() { chk.Unlock(&m) })
	require.NotNil(t, fatal)
	assert.Equal(t, "unlock", fatal.Context.Operation)
	assert.Equal(t, 3, fatal.Context.Index)
	assert.ErrorIs(t, fatal, types.ErrNotOwner)
	assert.True(t, strings.HasPrefix(fatal.Context.Location(), "checked_test.go:"),
		"location should be the caller, got %s", fatal.Context.Location())
}

func TestChecked_RelockIsFatal(t *testing.T) {
	chk := NewChecked(perrors.NewPanicHandler())

	var m Mutex
	chk.InitMutex(&m)
	chk.Lock(&m)

	fatal := fatalOf(func() { chk.Lock(&m) })
	require.NotNil(t, fatal)
	assert.ErrorIs(t, fatal, types.ErrDeadlock)

	chk.Unlock(&m)
}

func TestChecked_DestroyHeldMutexCarriesMetadata(t *testing.T) {
	chk := NewChecked(perrors.NewPanicHandler())

	var m Mutex
	chk.InitMutex(&m)
	chk.Lock(&m)

	fatal := fatalOf(func() { chk.DestroyMutex(&m) })
	require.NotNil(t, fatal)
	assert.ErrorIs(t, fatal, types.ErrBusy)
	assert.Contains(t, fatal.Context.Metadata, "owner")

	chk.Unlock(&m)
}

func TestChecked_ReturningHandlerStillStops(t *testing.T) {
	handler := &recordingHandler{}
	chk := NewChecked(handler)

	var cv Cond
	fatal := fatalOf(func() { chk.Signal(&cv) })
	require.NotNil(t, fatal)
	require.Len(t, handler.seen, 1)
	assert.Equal(t, "cond_signal", handler.seen[0].Operation)
	assert.ErrorIs(t, fatal, types.ErrNotInitialized)
}

func TestChecked_WaitCancelled(t *testing.T) {
	chk := NewChecked(perrors.NewPanicHandler())

	var m Mutex
	var cv Cond
	chk.InitMutex(&m)
	chk.InitCond(&cv)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	chk.Lock(&m)
	err := chk.Wait(ctx, &cv, &m)
	assert.ErrorIs(t, err, types.ErrCancelled)
	assert.True(t, m.HeldByCaller())
	chk.Unlock(&m)

	chk.DestroyCond(&cv)
	chk.DestroyMutex(&m)
}

func TestChecked_WaitWithoutLockIsFatal(t *testing.T) {
	chk := NewChecked(perrors.NewPanicHandler())

	var m Mutex
	var cv Cond
	chk.InitMutex(&m)
	chk.InitCond(&cv)

	fatal := fatalOf(func() { _ = chk.Wait(context.Background(), &cv, &m) })
	require.NotNil(t, fatal)
	assert.Equal(t, "cond_wait", fatal.Context.Operation)
	assert.ErrorIs(t, fatal, types.ErrNotOwner)
}

func TestChecked_Spawn(t *testing.T) {
	chk := NewChecked(perrors.NewPanicHandler())
	noop := func(context.Context, any) any { return nil }

	t.Run("recoverable failure is returned", func(t *testing.T) {
		s := NewOSSpawner(&OSSpawnerConfig{MaxThreads: 1})
		blocker, err := chk.Spawn(context.Background(), s, func(ctx context.Context, _ any) any {
			<-ctx.Done()
			return nil
		}, nil, DefaultStackSize)
		require.NoError(t, err)

		var th *Thread
		assert.Nil(t, fatalOf(func() {
			th, err = chk.Spawn(context.Background(), s, noop, nil, DefaultStackSize)
		}))
		assert.Nil(t, th)
		assert.ErrorIs(t, err, types.ErrAgain)

		chk.RequestCancel(blocker)
		chk.Join(blocker)
	})

	t.Run("invalid stack size is fatal", func(t *testing.T) {
		s := NewOSSpawner(nil)
		fatal := fatalOf(func() {
			_, _ = chk.Spawn(context.Background(), s, noop, nil, 1)
		})
		require.NotNil(t, fatal)
		assert.Equal(t, "spawn", fatal.Context.Operation)
		assert.ErrorIs(t, fatal, types.ErrInvalidStackSize)
		assert.Equal(t, 1, fatal.Context.Metadata["stack_size"])
	})
}

func TestChecked_JoinTwiceIsFatal(t *testing.T) {
	chk := NewChecked(perrors.NewPanicHandler())
	s := NewOSSpawner(nil)

	th, err := chk.Spawn(context.Background(), s, func(context.Context, any) any { return "ok" }, nil, DefaultStackSize)
	require.NoError(t, err)

	status := chk.Join(th)
	assert.Equal(t, "ok", status.Value)

	fatal := fatalOf(func() { chk.Join(th) })
	require.NotNil(t, fatal)
	assert.ErrorIs(t, fatal, types.ErrInvalidThread)
}

func TestChecked_JoinTimeoutIsFatal(t *testing.T) {
	chk := NewChecked(perrors.NewPanicHandler())
	s := NewOSSpawner(&OSSpawnerConfig{JoinTimeout: 10 * time.Millisecond})

	th, err := chk.Spawn(context.Background(), s, func(ctx context.Context, _ any) any {
		<-ctx.Done()
		return nil
	}, nil, DefaultStackSize)
	require.NoError(t, err)

	fatal := fatalOf(func() { chk.Join(th) })
	require.NotNil(t, fatal)
	assert.ErrorIs(t, fatal, types.ErrJoinTimeout)

	chk.RequestCancel(th)
	chk.Join(th)
}

func TestChecked_CancelNilThread(t *testing.T) {
	chk := NewChecked(perrors.NewPanicHandler())

	fatal := fatalOf(func() { chk.RequestCancel(nil) })
	require.NotNil(t, fatal)
	assert.ErrorIs(t, fatal, types.ErrInvalidThread)
}
