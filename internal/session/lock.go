package session

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"path/filepath"

	"github.com/calvinalkan/rrdoc/internal/rrerr"
	"github.com/calvinalkan/rrdoc/pkg/fs"
)

// lockPath returns the lock file for the container at archivePath (absolute).
// Lock files live outside the container's directory so read-only document
// folders can still be opened.
func (m *Manager) lockPath(archivePath string) string {
	sum := sha256.Sum256([]byte(archivePath))

	return filepath.Join(m.lockDir, hex.EncodeToString(sum[:12])+".lock")
}

// acquireLock takes the container lock for archivePath, or reuses the lock
// of the current session when it is the same container.
// reused reports whether the lock belongs to the current session.
func (m *Manager) acquireLock(op, archivePath string) (lock *fs.Lock, reused bool, err error) {
	if m.current != nil && m.current.archivePath == archivePath {
		return m.current.lock, true, nil
	}

	lock, err = m.locker.TryLock(m.lockPath(archivePath))
	if err != nil {
		if errors.Is(err, fs.ErrWouldBlock) {
			return nil, false, rrerr.New(rrerr.KindContainerBusy, op, archivePath, err)
		}

		return nil, false, rrerr.New(rrerr.KindFilesystem, op, archivePath, err)
	}

	return lock, false, nil
}

func (m *Manager) releaseLock(lock *fs.Lock) {
	if lock == nil {
		return
	}

	err := lock.Close()
	if err != nil {
		m.log.Warn("release container lock", "lock", lock.Path(), "err", err)
	}
}
