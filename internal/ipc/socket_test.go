package ipc

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAcquireReplacesStaleSocketFile(t *testing.T) {
	t.Parallel()

	socketPath := filepath.Join(t.TempDir(), "parley.sock")
	require.NoError(t, os.WriteFile(socketPath, []byte("left over"), 0o600))

	var stale []string
	listener, err := Acquire(context.Background(), socketPath, AcquireOptions{
		ProbeTimeout: 50 * time.Millisecond,
		Retries:      2,
		OnStale:      func(path string) { stale = append(stale, path) },
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	require.Equal(t, []string{socketPath}, stale)
	info, err := os.Stat(socketPath)
	require.NoError(t, err)
	require.Equal(t, os.ModeSocket, info.Mode().Type())
}

func TestAcquireCreatesRuntimeDir(t *testing.T) {
	t.Parallel()

	socketPath := filepath.Join(t.TempDir(), "nested", "run", "parley.sock")
	listener, err := Acquire(context.Background(), socketPath, AcquireOptions{ProbeTimeout: 50 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { _ = listener.Close() })

	info, err := os.Stat(filepath.Dir(socketPath))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o700), info.Mode().Perm())
}

func TestAcquireRefusesWhileOwnerAnswers(t *testing.T) {
	t.Parallel()

	socketPath := filepath.Join(t.TempDir(), "parley.sock")
	owner, err := Acquire(context.Background(), socketPath, AcquireOptions{ProbeTimeout: 50 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() {
		served <- Serve(ctx, owner, HandlerFunc(func(context.Context, Request) Response {
			return Response{OK: true, State: "processing"}
		}))
	}()

	staleCalls := 0
	_, err = Acquire(context.Background(), socketPath, AcquireOptions{
		ProbeTimeout: 200 * time.Millisecond,
		Retries:      1,
		OnStale:      func(string) { staleCalls++ },
	})
	require.ErrorIs(t, err, ErrAlreadyRunning)
	require.Zero(t, staleCalls)

	cancel()
	require.NoError(t, <-served)
}

func TestAcquireKeepsSocketWhenProbeTimesOut(t *testing.T) {
	t.Parallel()

	socketPath := filepath.Join(t.TempDir(), "parley.sock")
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	accepted := make(chan struct{})
	go func() {
		defer close(accepted)
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				time.Sleep(250 * time.Millisecond)
			}()
		}
	}()

	_, err = Acquire(context.Background(), socketPath, AcquireOptions{ProbeTimeout: 30 * time.Millisecond})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrAlreadyRunning)
	require.Contains(t, err.Error(), "probe existing socket")

	_, err = os.Stat(socketPath)
	require.NoError(t, err)
	require.NoError(t, listener.Close())
	<-accepted
}

func TestAcquireHonorsCancelDuringBackoff(t *testing.T) {
	t.Parallel()

	socketPath := filepath.Join(t.TempDir(), "parley.sock")
	require.NoError(t, os.WriteFile(socketPath, nil, 0o600))
	ctx, cancel := context.WithCancel(context.Background())

	// Each removal is followed by a fresh stale file so listening never succeeds.
	_, err := Acquire(ctx, socketPath, AcquireOptions{
		ProbeTimeout: 20 * time.Millisecond,
		Retries:      3,
		OnStale: func(path string) {
			_ = os.WriteFile(path, nil, 0o600)
			cancel()
		},
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestAcquireGivesUpAfterRetries(t *testing.T) {
	t.Parallel()

	socketPath := filepath.Join(t.TempDir(), "parley.sock")
	require.NoError(t, os.WriteFile(socketPath, nil, 0o600))

	calls := 0
	_, err := Acquire(context.Background(), socketPath, AcquireOptions{
		ProbeTimeout: 20 * time.Millisecond,
		Retries:      1,
		OnStale: func(path string) {
			calls++
			_ = os.WriteFile(path, nil, 0o600)
		},
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "still in use after 1 retries")
	require.Equal(t, 2, calls)
}

func TestRuntimeSocketPath(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "")
	_, err := RuntimeSocketPath()
	require.ErrorContains(t, err, "XDG_RUNTIME_DIR")

	dir := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", dir)
	path, err := RuntimeSocketPath()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "parley.sock"), path)
}

func TestReleaseRemovesSocket(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "parley.sock")

	listener, err := Acquire(context.Background(), socketPath, AcquireOptions{ProbeTimeout: 50 * time.Millisecond})
	require.NoError(t, err)

	info, err := os.Stat(socketPath)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	require.NoError(t, Release(listener, socketPath))
	_, err = os.Stat(socketPath)
	require.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, Release(listener, socketPath))
}
