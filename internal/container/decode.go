package container

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/klauspost/compress/zip"

	"github.com/calvinalkan/rrdoc/internal/rrerr"
	"github.com/calvinalkan/rrdoc/pkg/fs"
)

// sqliteMagic is the 16-byte header every SQLite 3 database file starts with.
var sqliteMagic = []byte("SQLite format 3\x00")

// Contents describes what Decode found in an archive.
type Contents struct {
	// Manifest is nil when the archive has no manifest.json.
	Manifest *Manifest

	// HasStore reports whether the archive carried data.sqlite.
	HasStore bool
}

// Decode extracts the archive at archivePath into workDir, which must exist.
//
// Entry bytes are copied verbatim. An entry whose name would land outside
// workDir, an archive without document.pdf, an undecodable manifest or a
// store file without the SQLite header is [rrerr.KindArchiveCorrupt]. A
// manifest from an incompatible build is [rrerr.KindUnsupportedFormat].
// Filesystem errors are [rrerr.KindFilesystem].
//
// On error workDir may hold a partial extraction; the caller removes it.
func Decode(fsys fs.FS, archivePath, workDir string) (Contents, error) {
	const op = "decode"

	f, err := fsys.Open(archivePath)
	if err != nil {
		return Contents{}, rrerr.New(rrerr.KindFilesystem, op, archivePath, err)
	}

	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return Contents{}, rrerr.New(rrerr.KindFilesystem, op, archivePath, fmt.Errorf("stat: %w", err))
	}

	zr, err := zip.NewReader(f, info.Size())
	if err != nil {
		return Contents{}, rrerr.New(rrerr.KindArchiveCorrupt, op, archivePath, err)
	}

	seen := make(map[string]bool, len(zr.File))

	for _, entry := range zr.File {
		target, err := entryTarget(workDir, entry.Name)
		if err != nil {
			return Contents{}, rrerr.New(rrerr.KindArchiveCorrupt, op, archivePath, err)
		}

		if entry.FileInfo().IsDir() {
			err = fsys.MkdirAll(target, 0o750)
			if err != nil {
				return Contents{}, rrerr.New(rrerr.KindFilesystem, op, target, err)
			}

			continue
		}

		err = extractEntry(fsys, entry, target)
		if err != nil {
			return Contents{}, wrapEntryErr(op, archivePath, target, err)
		}

		seen[filepath.Clean(filepath.FromSlash(entry.Name))] = true
	}

	if !seen[DocumentName] {
		return Contents{}, rrerr.New(rrerr.KindArchiveCorrupt, op, archivePath,
			fmt.Errorf("missing %s", DocumentName))
	}

	contents := Contents{HasStore: seen[StoreName]}

	if contents.HasStore {
		err = checkStoreHeader(fsys, filepath.Join(workDir, StoreName))
		if err != nil {
			return Contents{}, rrerr.New(rrerr.KindArchiveCorrupt, op, archivePath, err)
		}
	}

	if seen[ManifestName] {
		m, err := ReadManifest(fsys, workDir)
		if err != nil {
			return Contents{}, err
		}

		err = m.Validate()
		if err != nil {
			return Contents{}, err
		}

		contents.Manifest = &m
	}

	return contents, nil
}

// entryTarget maps an archive entry name to a path below workDir.
// Names that are empty, absolute, use backslashes or climb out with ".." are
// rejected rather than sanitized.
func entryTarget(workDir, name string) (string, error) {
	clean := strings.TrimSuffix(name, "/")

	switch {
	case clean == "":
		return "", errors.New("entry with empty name")
	case strings.Contains(clean, `\`):
		return "", fmt.Errorf("entry %q contains a backslash", name)
	case strings.HasPrefix(clean, "/"):
		return "", fmt.Errorf("entry %q is absolute", name)
	}

	local := filepath.FromSlash(clean)
	if !filepath.IsLocal(local) {
		return "", fmt.Errorf("entry %q escapes the working directory", name)
	}

	// SecureJoin also resolves symlinks already present under workDir, so an
	// earlier entry cannot redirect a later one.
	target, err := securejoin.SecureJoin(workDir, local)
	if err != nil {
		return "", fmt.Errorf("entry %q: %w", name, err)
	}

	return target, nil
}

// errEntryWrite marks an extraction failure on the destination side.
type errEntryWrite struct{ err error }

func (e *errEntryWrite) Error() string { return e.err.Error() }
func (e *errEntryWrite) Unwrap() error { return e.err }

func wrapEntryErr(op, archivePath, target string, err error) error {
	var writeErr *errEntryWrite
	if errors.As(err, &writeErr) {
		return rrerr.New(rrerr.KindFilesystem, op, target, writeErr.err)
	}

	return rrerr.New(rrerr.KindArchiveCorrupt, op, archivePath, err)
}

// trackingWriter remembers write errors so a full disk is not reported as a
// corrupt archive.
type trackingWriter struct {
	w   io.Writer
	err error
}

func (t *trackingWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if err != nil {
		t.err = err
	}

	return n, err
}

func extractEntry(fsys fs.FS, entry *zip.File, target string) error {
	err := fsys.MkdirAll(filepath.Dir(target), 0o750)
	if err != nil {
		return &errEntryWrite{err: err}
	}

	src, err := entry.Open()
	if err != nil {
		return fmt.Errorf("open entry %q: %w", entry.Name, err)
	}

	defer func() { _ = src.Close() }()

	dst, err := fsys.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return &errEntryWrite{err: err}
	}

	tw := &trackingWriter{w: dst}

	_, copyErr := io.Copy(tw, src)
	closeErr := dst.Close()

	if copyErr != nil {
		if tw.err != nil {
			return &errEntryWrite{err: copyErr}
		}

		return fmt.Errorf("read entry %q: %w", entry.Name, copyErr)
	}

	if closeErr != nil {
		return &errEntryWrite{err: closeErr}
	}

	return nil
}

// checkStoreHeader rejects a non-empty store file that is not SQLite.
// An empty file is a valid, empty database to SQLite.
func checkStoreHeader(fsys fs.FS, path string) error {
	f, err := fsys.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", StoreName, err)
	}

	defer func() { _ = f.Close() }()

	header := make([]byte, len(sqliteMagic))

	n, err := io.ReadFull(f, header)
	if n == 0 && (errors.Is(err, io.EOF) || err == nil) {
		return nil
	}

	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("read %s header: %w", StoreName, err)
	}

	if !bytes.Equal(header[:n], sqliteMagic) {
		return fmt.Errorf("%s is not an SQLite database", StoreName)
	}

	return nil
}
