package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/calvinalkan/rrdoc/internal/container"
	"github.com/calvinalkan/rrdoc/internal/rrerr"
	"github.com/calvinalkan/rrdoc/internal/store"
	"github.com/calvinalkan/rrdoc/pkg/fs"
)

// ImportOptions configures Import.
type ImportOptions struct {
	// Dest is the container path. Defaults to the source path with its
	// extension replaced by ".rr".
	Dest string

	// Overwrite allows replacing an existing container at Dest.
	Overwrite bool
}

// Open opens the document at path. A .rr container is decoded; a .pdf is
// imported with default [ImportOptions]. Any other extension is
// [rrerr.KindUnsupportedFormat].
//
// Opening a .pdf is not idempotent: it creates the sibling .rr container and
// fails with [rrerr.KindValidation] when that container already exists. The
// existing container is never overwritten; open it directly or use [Manager.Import]
// with Overwrite.
//
// If a session is open it is persisted first. A persist failure aborts the
// open and keeps the current session.
func (m *Manager) Open(ctx context.Context, path string) (DocumentInfo, error) {
	const op = "open"

	m.mu.Lock()
	defer m.mu.Unlock()

	switch classify(path) {
	case sourceContainer:
		return m.openContainer(ctx, path)
	case sourcePDF:
		return m.importPDF(ctx, path, ImportOptions{})
	default:
		return DocumentInfo{}, rrerr.New(rrerr.KindUnsupportedFormat, op, path,
			fmt.Errorf("extension %q is neither %s nor .pdf", filepath.Ext(path), container.Extension))
	}
}

// Import creates a new container from the PDF at pdfPath and opens it.
// The container is written to disk before Import returns.
//
// Nothing is left at the destination if Import fails.
func (m *Manager) Import(ctx context.Context, pdfPath string, opts ImportOptions) (DocumentInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.importPDF(ctx, pdfPath, opts)
}

// Save writes the open session back to its archive.
// Returns [rrerr.ErrNoActiveSession] if nothing is open.
func (m *Manager) Save(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return rrerr.New(rrerr.KindNoActiveSession, "save", "", nil)
	}

	return m.persist(ctx, m.current)
}

// Close persists and closes the open session. Closing with nothing open is
// a no-op. If persisting fails the session stays open and unchanged so the
// caller can retry.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return nil
	}

	err := m.persist(ctx, m.current)
	if err != nil {
		return err
	}

	m.teardown(m.current, false)
	m.current = nil

	return nil
}

// Shutdown is Close for process exit. If persisting fails the store is
// closed and the lock released anyway, but the working directory is kept on
// disk so its edits can be recovered; its path is logged and the persist
// error returned.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return nil
	}

	sess := m.current
	m.current = nil

	err := m.persist(ctx, sess)
	if err == nil {
		m.teardown(sess, false)

		return nil
	}

	m.log.Error("unsaved changes kept in working directory",
		"archive", sess.archivePath, "work_dir", sess.workDir, "err", err)

	closeErr := sess.store.Close()
	if closeErr != nil {
		m.log.Warn("close store", "path", sess.store.Path(), "err", closeErr)
	}

	m.releaseLock(sess.lock)

	return err
}

// persist encodes sess to its archive after checkpointing its store.
func (m *Manager) persist(ctx context.Context, sess *Session) error {
	err := container.Encode(m.fs, sess.workDir, sess.archivePath, func() error {
		return sess.store.Checkpoint(ctx)
	}, m.encode)
	if err != nil {
		return err
	}

	m.log.Debug("session saved", "archive", sess.archivePath)

	return nil
}

// teardown closes the store, removes the working directory and, unless
// keepLock is set, releases the container lock. Failures are logged.
func (m *Manager) teardown(sess *Session, keepLock bool) {
	err := sess.store.Close()
	if err != nil {
		m.log.Warn("close store", "path", sess.store.Path(), "err", err)
	}

	err = container.Cleanup(m.fs, sess.workDir)
	if err != nil {
		m.log.Warn("remove working directory", "work_dir", sess.workDir, "err", err)
	}

	if !keepLock {
		m.releaseLock(sess.lock)
	}

	m.log.Debug("session closed", "archive", sess.archivePath)
}

// replace installs next as the current session and tears down the previous
// one. The lock is kept when next took it over.
func (m *Manager) replace(next *Session) {
	prev := m.current
	m.current = next

	if prev != nil {
		m.teardown(prev, prev.lock == next.lock)
	}

	m.log.Debug("session opened", "archive", next.archivePath, "work_dir", next.workDir)
}

// persistCurrent saves the current session before it is replaced.
func (m *Manager) persistCurrent(ctx context.Context) error {
	if m.current == nil {
		return nil
	}

	return m.persist(ctx, m.current)
}

func (m *Manager) newWorkDir(op string) (string, error) {
	err := m.fs.MkdirAll(m.workRoot, 0o750)
	if err != nil {
		return "", rrerr.New(rrerr.KindFilesystem, op, m.workRoot, err)
	}

	dir, err := m.fs.MkdirTemp(m.workRoot, "rr-session-*")
	if err != nil {
		return "", rrerr.New(rrerr.KindFilesystem, op, m.workRoot, err)
	}

	return dir, nil
}

// abandon undoes a partially materialized session.
func (m *Manager) abandon(workDir string, st *store.Store, lock *fs.Lock, lockReused bool) {
	if st != nil {
		_ = st.Close()
	}

	err := container.Cleanup(m.fs, workDir)
	if err != nil {
		m.log.Warn("remove working directory", "work_dir", workDir, "err", err)
	}

	if !lockReused {
		m.releaseLock(lock)
	}
}

func (m *Manager) openStore(ctx context.Context, workDir string) (*store.Store, error) {
	return store.Open(ctx, filepath.Join(workDir, container.StoreName), store.Options{Now: m.now})
}

func (m *Manager) openContainer(ctx context.Context, path string) (DocumentInfo, error) {
	const op = "open"

	archivePath, err := absPath(op, path)
	if err != nil {
		return DocumentInfo{}, err
	}

	err = m.persistCurrent(ctx)
	if err != nil {
		return DocumentInfo{}, err
	}

	lock, reused, err := m.acquireLock(op, archivePath)
	if err != nil {
		return DocumentInfo{}, err
	}

	workDir, err := m.newWorkDir(op)
	if err != nil {
		m.abandon("", nil, lock, reused)

		return DocumentInfo{}, err
	}

	contents, err := container.Decode(m.fs, archivePath, workDir)
	if err != nil {
		m.abandon(workDir, nil, lock, reused)

		return DocumentInfo{}, err
	}

	if contents.Manifest == nil {
		m.log.Warn("container has no manifest, writing a new one", "archive", archivePath)

		err = container.WriteManifest(m.fs, workDir, container.NewManifest(m.now()))
		if err != nil {
			m.abandon(workDir, nil, lock, reused)

			return DocumentInfo{}, err
		}
	}

	st, err := m.openStore(ctx, workDir)
	if err != nil {
		m.abandon(workDir, nil, lock, reused)

		return DocumentInfo{}, err
	}

	sess := &Session{archivePath: archivePath, workDir: workDir, store: st, lock: lock}

	info, err := m.documentInfo(ctx, sess)
	if err != nil {
		m.abandon(workDir, st, lock, reused)

		return DocumentInfo{}, err
	}

	m.replace(sess)

	return info, nil
}

func (m *Manager) importPDF(ctx context.Context, pdfPath string, opts ImportOptions) (DocumentInfo, error) {
	const op = "import"

	source, err := absPath(op, pdfPath)
	if err != nil {
		return DocumentInfo{}, err
	}

	dest := opts.Dest
	if dest == "" {
		dest = container.DefaultArchivePath(source)
	}

	archivePath, err := absPath(op, dest)
	if err != nil {
		return DocumentInfo{}, err
	}

	if archivePath == source {
		return DocumentInfo{}, rrerr.New(rrerr.KindValidation, op, archivePath,
			errors.New("destination is the source pdf"))
	}

	exists, err := m.fs.Exists(source)
	if err != nil {
		return DocumentInfo{}, rrerr.New(rrerr.KindFilesystem, op, source, err)
	}

	if !exists {
		return DocumentInfo{}, rrerr.New(rrerr.KindValidation, op, source, errors.New("source pdf not found"))
	}

	exists, err = m.fs.Exists(archivePath)
	if err != nil {
		return DocumentInfo{}, rrerr.New(rrerr.KindFilesystem, op, archivePath, err)
	}

	if exists && !opts.Overwrite {
		return DocumentInfo{}, rrerr.New(rrerr.KindValidation, op, archivePath,
			errors.New("container already exists"))
	}

	err = m.persistCurrent(ctx)
	if err != nil {
		return DocumentInfo{}, err
	}

	lock, reused, err := m.acquireLock(op, archivePath)
	if err != nil {
		return DocumentInfo{}, err
	}

	workDir, err := m.newWorkDir(op)
	if err != nil {
		m.abandon("", nil, lock, reused)

		return DocumentInfo{}, err
	}

	_, err = container.Stage(m.fs, source, workDir, m.now())
	if err != nil {
		m.abandon(workDir, nil, lock, reused)

		return DocumentInfo{}, err
	}

	st, err := m.openStore(ctx, workDir)
	if err != nil {
		m.abandon(workDir, nil, lock, reused)

		return DocumentInfo{}, err
	}

	if title := container.Title(source); title != "" {
		err = st.SetMetadata(ctx, store.MetaTitle, title)
		if err != nil {
			m.abandon(workDir, st, lock, reused)

			return DocumentInfo{}, err
		}
	}

	sess := &Session{archivePath: archivePath, workDir: workDir, store: st, lock: lock}

	info, err := m.documentInfo(ctx, sess)
	if err != nil {
		m.abandon(workDir, st, lock, reused)

		return DocumentInfo{}, err
	}

	err = m.persist(ctx, sess)
	if err != nil {
		m.abandon(workDir, st, lock, reused)

		return DocumentInfo{}, err
	}

	m.replace(sess)

	return info, nil
}
