// Package lockfile provides a cross-process advisory lock backed by a file
// created with O_EXCL. The file holds the owner's pid and a random token: the
// pid lets a lock left behind by a crashed process be detected, the token
// makes sure a release only ever removes the caller's own lock.
package lockfile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/sirupsen/logrus"

	"github.com/uniconv/uniconv/internal/errdefs"
	"github.com/uniconv/uniconv/internal/logging"
)

// PollInterval is how often a held lock is retried.
var PollInterval = 100 * time.Millisecond

// breakGuardAge is how old a break guard must be before it is treated as
// abandoned by a process that died while breaking a lock.
const breakGuardAge = 10 * time.Second

// ErrLocked is returned by Take with NoWait when the lock is held.
var ErrLocked = errors.New("lock is held by another process")

// Options tune Take.
type Options struct {
	// Waiting is called once when the lock is held by someone else.
	Waiting func()
	// NoWait fails with ErrLocked instead of polling.
	NoWait bool
	Log    logrus.FieldLogger
}

// Take acquires the lock at path, polling until it is free or ctx is done.
// The returned func releases it.
func Take(ctx context.Context, path string, opts Options) (func(), error) {
	log := opts.Log
	if log == nil {
		log = logging.Discard()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}

	tk := time.NewTicker(PollInterval)
	defer tk.Stop()

	token := uuid.NewString()
	notified := false
	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			_, werr := fmt.Fprintf(f, "%d %s\n", os.Getpid(), token)
			cerr := f.Close()
			if werr != nil || cerr != nil {
				os.Remove(path)
				return nil, fmt.Errorf("writing lock file %s: %w", path, errors.Join(werr, cerr))
			}
			return func() { release(path, token, log) }, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("creating lock file %s: %w", path, err)
		}

		if _, stale := isStale(ctx, path); stale {
			broke, err := breakStale(ctx, path, log)
			if err != nil {
				return nil, err
			}
			if broke {
				continue
			}
		}

		if opts.NoWait {
			pid, _ := Holder(path)
			return nil, fmt.Errorf("%w (pid %d)", ErrLocked, pid)
		}
		if !notified {
			notified = true
			if opts.Waiting != nil {
				opts.Waiting()
			}
		}

		select {
		case <-tk.C:
		case <-ctx.Done():
			return nil, errdefs.Kind(errdefs.FromContext(ctx.Err()), "waiting for lock %s", path)
		}
	}
}

// release removes the lock file only while it still carries token.
func release(path, token string, log logrus.FieldLogger) {
	_, owner, err := readOwner(path)
	if err != nil || owner != token {
		log.WithField("lock", path).Warn("lock file is no longer ours, leaving it")
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.WithError(err).WithField("lock", path).Warn("removing lock file")
	}
}

// breakStale removes a lock whose owner is dead. Only the holder of the
// break guard removes lock files, and nobody else removes a lock owned by a
// dead process, so the stale owner seen under the guard is the one removed.
// It reports false when another contender is breaking the lock or the lock
// turned out to be live.
func breakStale(ctx context.Context, path string, log logrus.FieldLogger) (bool, error) {
	guard := path + ".break"
	g, err := os.OpenFile(guard, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if errors.Is(err, fs.ErrExist) {
		if info, serr := os.Stat(guard); serr == nil && time.Since(info.ModTime()) > breakGuardAge {
			log.WithField("guard", guard).Warn("removing abandoned lock break guard")
			os.Remove(guard)
		}
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("creating lock break guard %s: %w", guard, err)
	}
	g.Close()
	defer os.Remove(guard)

	pid, stale := isStale(ctx, path)
	if !stale {
		return false, nil
	}
	log.WithField("lock", path).WithField("pid", pid).Warn("removing stale lock")
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("removing stale lock %s: %w", path, err)
	}
	return true, nil
}

// Holder returns the pid recorded in the lock file at path.
func Holder(path string) (int, error) {
	pid, _, err := readOwner(path)
	return pid, err
}

// readOwner parses "<pid> <token>". Lock files without a token yield an
// empty token.
func readOwner(path string) (int, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, "", err
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return 0, "", fmt.Errorf("lock file %s is empty", path)
	}
	pid, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, "", fmt.Errorf("lock file %s does not hold a pid: %w", path, err)
	}
	token := ""
	if len(fields) > 1 {
		token = fields[1]
	}
	return pid, token, nil
}

// isStale reports whether the lock's owner is gone. A lock whose pid cannot
// be read yet (the owner is between create and write) is not stale.
func isStale(ctx context.Context, path string) (int, bool) {
	pid, err := Holder(path)
	if err != nil || pid <= 0 {
		return 0, false
	}
	if pid == os.Getpid() {
		return pid, false
	}
	alive, err := process.PidExistsWithContext(ctx, int32(pid))
	if err != nil {
		return pid, false
	}
	return pid, !alive
}
