// Package session owns the currently open container.
//
// A [Manager] holds at most one session. Opening or importing while a
// session is open first persists the current session; the new session
// replaces it only once it is fully materialized, so a failed open leaves the
// previous document open and intact.
//
// All state transitions and every store access go through one mutex, so
// callers observe a linear history and never a session mid-replacement.
//
// While a session is open the Manager holds an exclusive flock(2) on a lock
// file derived from the archive path. A second Manager (in this or another
// process) opening the same container fails with [rrerr.ErrContainerBusy].
package session

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/flate"

	"github.com/calvinalkan/rrdoc/internal/container"
	"github.com/calvinalkan/rrdoc/internal/rrerr"
	"github.com/calvinalkan/rrdoc/internal/store"
	"github.com/calvinalkan/rrdoc/pkg/fs"
)

// DocumentInfo summarizes the open document.
type DocumentInfo struct {
	// ArchivePath is the absolute path of the container.
	ArchivePath string `json:"rr_path" yaml:"rr_path"`

	// PDFPath is the extracted document inside the working directory. It is
	// valid only while the session stays open.
	PDFPath string `json:"pdf_path" yaml:"pdf_path"`

	Title     string `json:"title"                yaml:"title"`
	PageCount *int   `json:"page_count,omitempty" yaml:"page_count,omitempty"`
	LastPage  *int   `json:"last_page,omitempty"  yaml:"last_page,omitempty"`
}

// Session is one open container: its archive path, working directory,
// store handle and container lock. Only the Manager touches a Session.
type Session struct {
	archivePath string
	workDir     string
	store       *store.Store
	lock        *fs.Lock
}

// ArchivePath returns the absolute container path.
func (s *Session) ArchivePath() string { return s.archivePath }

// WorkDir returns the working directory.
func (s *Session) WorkDir() string { return s.workDir }

func (s *Session) documentPath() string {
	return filepath.Join(s.workDir, container.DocumentName)
}

// Options configures a Manager. Zero values get defaults.
type Options struct {
	// FS is the filesystem. Defaults to [fs.NewReal].
	FS fs.FS

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	// Logger receives lifecycle and cleanup messages. Defaults to a
	// discarding logger.
	Logger *slog.Logger

	// WorkRoot is the parent of session working directories.
	// Defaults to os.TempDir().
	WorkRoot string

	// LockDir holds container lock files. Defaults to
	// $TMPDIR/rr-locks.
	LockDir string

	// CompressionLevel is the deflate level of compressed entries, -1..9.
	// 0 selects the default level.
	CompressionLevel int

	// NoCompression stores every entry uncompressed.
	NoCompression bool
}

// Manager is the session state machine. Safe for concurrent use.
type Manager struct {
	mu sync.Mutex

	fs       fs.FS
	locker   *fs.Locker
	now      func() time.Time
	log      *slog.Logger
	workRoot string
	lockDir  string
	encode   container.EncodeOptions

	current *Session
}

// New returns a Manager in the Closed state.
func New(opts Options) (*Manager, error) {
	fsys := opts.FS
	if fsys == nil {
		fsys = fs.NewReal()
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	workRoot := opts.WorkRoot
	if workRoot == "" {
		workRoot = os.TempDir()
	}

	lockDir := opts.LockDir
	if lockDir == "" {
		lockDir = filepath.Join(os.TempDir(), "rr-locks")
	}

	level := opts.CompressionLevel
	if level == 0 {
		level = flate.DefaultCompression
	}

	if !container.ValidCompressionLevel(level) {
		return nil, rrerr.New(rrerr.KindValidation, "new session manager", "",
			fmt.Errorf("compression level must be between %d and %d, got %d",
				flate.DefaultCompression, flate.BestCompression, opts.CompressionLevel))
	}

	return &Manager{
		fs:       fsys,
		locker:   fs.NewLocker(fsys),
		now:      now,
		log:      logger,
		workRoot: workRoot,
		lockDir:  lockDir,
		encode: container.EncodeOptions{
			CompressionLevel: level,
			NoCompression:    opts.NoCompression,
		},
	}, nil
}

// sourceKind is the closed set of files Open accepts.
type sourceKind uint8

const (
	sourceUnsupported sourceKind = iota
	sourceContainer
	sourcePDF
)

func classify(path string) sourceKind {
	switch strings.ToLower(filepath.Ext(path)) {
	case container.Extension:
		return sourceContainer
	case ".pdf":
		return sourcePDF
	default:
		return sourceUnsupported
	}
}

func absPath(op, path string) (string, error) {
	if path == "" {
		return "", rrerr.New(rrerr.KindValidation, op, "", errors.New("path is empty"))
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", rrerr.New(rrerr.KindFilesystem, op, path, err)
	}

	return abs, nil
}
