package fs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// ErrWouldBlock is returned by [Locker.TryLock] when another open file
// description already holds the lock.
var ErrWouldBlock = errors.New("lock would block")

// errInodeMismatch indicates the lock file was replaced between open and
// flock. TryLock retries once when it sees it.
var errInodeMismatch = errors.New("inode mismatch")

// Locker provides exclusive advisory locks using flock(2).
//
// flock applies to an open file description, not a pathname or a process:
// two TryLock calls on the same path fail against each other even inside one
// process. Lock files are stable on disk and are never unlinked while locks
// may be held.
//
// This implementation is Unix-only.
type Locker struct {
	fs    FS
	flock func(fd int, how int) error
}

// NewLocker creates a Locker that uses the given filesystem for file operations.
func NewLocker(fs FS) *Locker {
	return &Locker{
		fs:    fs,
		flock: unix.Flock,
	}
}

// Lock represents a held file lock. Call [Lock.Close] to release it.
type Lock struct {
	mu    sync.Mutex
	path  string
	file  File
	flock func(fd int, how int) error
}

// Path returns the lock file path.
func (lk *Lock) Path() string {
	return lk.path
}

// Close releases the lock and closes the underlying file descriptor.
//
// Close is idempotent. If both unlocking and closing fail, the returned error
// wraps both (see [errors.Join]).
func (lk *Lock) Close() error {
	lk.mu.Lock()
	defer lk.mu.Unlock()

	if lk.file == nil {
		return nil
	}

	fd := int(lk.file.Fd())

	unlockErr := flockRetryEINTR(lk.flock, fd, unix.LOCK_UN)
	closeErr := lk.file.Close()
	lk.file = nil

	if unlockErr != nil {
		unlockErr = fmt.Errorf("unlocking lock: %w", unlockErr)
	}

	if closeErr != nil {
		closeErr = fmt.Errorf("closing lock fd: %w", closeErr)
	}

	return errors.Join(unlockErr, closeErr)
}

// TryLock acquires an exclusive lock on the file at path without blocking.
//
// The lock file and its parent directories are created if missing. Returns
// an error wrapping [ErrWouldBlock] if the lock is held elsewhere.
func (l *Locker) TryLock(path string) (*Lock, error) {
	if path == "" {
		return nil, errors.New("lock path is empty")
	}

	for attempt := 0; ; attempt++ {
		lk, err := l.tryLockOnce(path)
		if errors.Is(err, errInodeMismatch) && attempt == 0 {
			continue
		}

		return lk, err
	}
}

func (l *Locker) tryLockOnce(path string) (*Lock, error) {
	err := l.fs.MkdirAll(filepath.Dir(path), 0o750)
	if err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	file, err := l.fs.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	err = flockRetryEINTR(l.flock, int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		_ = file.Close()

		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s", ErrWouldBlock, path)
		}

		return nil, fmt.Errorf("flock %s: %w", path, err)
	}

	same, err := l.inodeMatchesPath(path, file)
	if err != nil || !same {
		_ = flockRetryEINTR(l.flock, int(file.Fd()), unix.LOCK_UN)
		_ = file.Close()

		if err != nil {
			return nil, err
		}

		return nil, errInodeMismatch
	}

	return &Lock{path: path, file: file, flock: l.flock}, nil
}

// inodeMatchesPath reports whether the locked descriptor still refers to the
// file currently at path.
func (l *Locker) inodeMatchesPath(path string, f File) (bool, error) {
	fdInfo, err := f.Stat()
	if err != nil {
		return false, fmt.Errorf("stat lock fd: %w", err)
	}

	pathInfo, err := l.fs.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("stat lock path: %w", err)
	}

	fdStat, ok1 := fdInfo.Sys().(*syscall.Stat_t)
	pathStat, ok2 := pathInfo.Sys().(*syscall.Stat_t)

	if !ok1 || !ok2 {
		return os.SameFile(fdInfo, pathInfo), nil
	}

	return fdStat.Dev == pathStat.Dev && fdStat.Ino == pathStat.Ino, nil
}

func flockRetryEINTR(flock func(int, int) error, fd int, how int) error {
	for {
		err := flock(fd, how)
		if !errors.Is(err, unix.EINTR) {
			return err
		}
	}
}
