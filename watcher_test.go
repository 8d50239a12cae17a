//go:build linux && (amd64 || arm64)

package sysprop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherReadAndWait(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "init.svc.adbd", "stopped"))

	w, err := s.Watcher("init.svc.adbd")
	require.NoError(t, err)

	v, err := w.Read()
	require.NoError(t, err)
	assert.Equal(t, "stopped", v)

	done := make(chan error, 1)
	go func() {
		waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		done <- w.Wait(waitCtx)
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, s.Set(ctx, "init.svc.adbd", "running"))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not observe the change")
	}

	v, err = w.Read()
	require.NoError(t, err)
	assert.Equal(t, "running", v)
}

func TestWatcherMissingProperty(t *testing.T) {
	s := newTestStore(t)

	w, err := s.Watcher("keystore.boot_level")
	require.NoError(t, err)

	_, err = w.Read()
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWatcherWaitForCreation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	w, err := s.Watcher("sys.late.arrival")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		done <- w.Wait(waitCtx)
	}()

	time.Sleep(50 * time.Millisecond)
	// Unrelated writes wake the area counter but must not satisfy the wait.
	require.NoError(t, s.Set(ctx, "sys.unrelated", "x"))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, s.Set(ctx, "sys.late.arrival", "here"))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not observe property creation")
	}

	v, err := w.Read()
	require.NoError(t, err)
	assert.Equal(t, "here", v)
}

func TestWatcherWaitForValue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	w, err := s.Watcher("sys.boot.completed")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		done <- w.WaitForValue(waitCtx, "1")
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, s.Set(ctx, "sys.boot.completed", "0"))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, s.Set(ctx, "sys.boot.completed", "1"))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("WaitForValue did not complete")
	}
}

func TestWatcherWaitTimeout(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Set(context.Background(), "static.prop", "v"))

	w, err := s.Watcher("static.prop")
	require.NoError(t, err)
	_, err = w.Read()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, w.Wait(ctx), ErrTimedOut)
}

func TestWatcherInvalidName(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Watcher("bad..name")
	assert.ErrorIs(t, err, ErrInvalidName)
}
