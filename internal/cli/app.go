package cli

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"

	"github.com/klauspost/compress/flate"

	"github.com/calvinalkan/rrdoc/internal/config"
	"github.com/calvinalkan/rrdoc/internal/session"
	"github.com/calvinalkan/rrdoc/pkg/fs"
)

var (
	errFileRequired = errors.New("file is required")
	errIDRequired   = errors.New("annotation id is required")
	errKeyRequired  = errors.New("metadata key is required")
	errTooManyArgs  = errors.New("too many arguments")
	errNotFound     = errors.New("not found")
)

// app carries what every command needs.
type app struct {
	fs     fs.FS
	cwd    string
	cfg    config.Config
	env    map[string]string
	log    *slog.Logger
	format format
}

// path resolves p against the effective working directory.
func (a *app) path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}

	return filepath.Join(a.cwd, p)
}

func (a *app) newManager() (*session.Manager, error) {
	level := a.cfg.Compression()

	return session.New(session.Options{
		FS:               a.fs,
		Logger:           a.log,
		WorkRoot:         a.cfg.WorkDir,
		LockDir:          a.cfg.LockDir,
		CompressionLevel: level,
		NoCompression:    level == flate.NoCompression,
	})
}

// withDocument opens path, runs fn and saves the document on the way out.
// If saving fails the working directory is kept and logged.
func (a *app) withDocument(ctx context.Context, path string, fn func(*session.Manager) error) (err error) {
	if path == "" {
		return errFileRequired
	}

	mgr, err := a.newManager()
	if err != nil {
		return err
	}

	_, err = mgr.Open(ctx, a.path(path))
	if err != nil {
		return err
	}

	defer func() {
		err = errors.Join(err, mgr.Shutdown(context.WithoutCancel(ctx)))
	}()

	return fn(mgr)
}

// fileArg splits args into the document path and the rest, requiring at
// least want trailing arguments and at most want+optional.
func fileArg(args []string, want, optional int, missing error) (string, []string, error) {
	if len(args) == 0 {
		return "", nil, errFileRequired
	}

	rest := args[1:]
	if len(rest) < want {
		return "", nil, missing
	}

	if len(rest) > want+optional {
		return "", nil, errTooManyArgs
	}

	return args[0], rest, nil
}
