package lockfile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniconv/uniconv/internal/errdefs"
)

func TestTakeAndRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locks", "ascii.lock")

	release, err := Take(context.Background(), path, Options{})
	require.NoError(t, err)

	pid, err := Holder(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	release()
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestTakeWaitsForRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ascii.lock")
	release, err := Take(context.Background(), path, Options{})
	require.NoError(t, err)

	waited := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		r, err := Take(context.Background(), path, Options{Waiting: func() { close(waited) }})
		if err == nil {
			r()
		}
		done <- err
	}()

	select {
	case <-waited:
	case <-time.After(5 * time.Second):
		t.Fatal("second Take did not wait")
	}
	release()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("second Take did not acquire the released lock")
	}
}

func TestTakeHonorsContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ascii.lock")
	release, err := Take(context.Background(), path, Options{})
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = Take(ctx, path, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errdefs.ErrCancelled))
}

func TestTakeBreaksStaleLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ascii.lock")
	// Pids are bounded well below this on every supported platform.
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(1<<30)), 0644))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	release, err := Take(ctx, path, Options{})
	require.NoError(t, err)
	defer release()

	pid, err := Holder(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestTakeNoWait(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ascii.lock")
	release, err := Take(context.Background(), path, Options{})
	require.NoError(t, err)

	_, err = Take(context.Background(), path, Options{NoWait: true})
	assert.True(t, errors.Is(err, ErrLocked))

	release()
	again, err := Take(context.Background(), path, Options{NoWait: true})
	require.NoError(t, err)
	again()
}

func TestConcurrentTakeOnStaleLockHasOneHolder(t *testing.T) {
	old := PollInterval
	PollInterval = 2 * time.Millisecond
	t.Cleanup(func() { PollInterval = old })

	for round := 0; round < 20; round++ {
		path := filepath.Join(t.TempDir(), "ascii.lock")
		require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(1<<30)), 0644))

		var (
			holders atomic.Int32
			maxSeen atomic.Int32
			wg      sync.WaitGroup
		)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				release, err := Take(ctx, path, Options{})
				if !assert.NoError(t, err) {
					return
				}
				n := holders.Add(1)
				for {
					m := maxSeen.Load()
					if n <= m || maxSeen.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				holders.Add(-1)
				release()
			}()
		}
		wg.Wait()
		cancel()

		require.Equal(t, int32(1), maxSeen.Load(), "round %d: lock held by more than one owner", round)
		_, err := os.Stat(path)
		assert.True(t, os.IsNotExist(err), "round %d: lock file left behind", round)
		_, err = os.Stat(path + ".break")
		assert.True(t, os.IsNotExist(err), "round %d: break guard left behind", round)
	}
}

func TestReleaseKeepsForeignLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ascii.lock")
	release, err := Take(context.Background(), path, Options{})
	require.NoError(t, err)

	// Another owner replaced the file; releasing must not delete it.
	foreign := strconv.Itoa(os.Getpid()) + " someone-else\n"
	require.NoError(t, os.WriteFile(path, []byte(foreign), 0644))
	release()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, foreign, string(data))
}

func TestHolderReadsTokenedLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ascii.lock")
	require.NoError(t, os.WriteFile(path, []byte("4242 abc\n"), 0644))

	pid, token, err := readOwner(path)
	require.NoError(t, err)
	assert.Equal(t, 4242, pid)
	assert.Equal(t, "abc", token)

	pid, err = Holder(path)
	require.NoError(t, err)
	assert.Equal(t, 4242, pid)
}
