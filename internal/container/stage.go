package container

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/calvinalkan/rrdoc/internal/rrerr"
	"github.com/calvinalkan/rrdoc/pkg/fs"
)

// Stage builds the working directory of a new container: it copies the PDF
// at pdfPath to workDir/document.pdf and writes a fresh manifest stamped now.
//
// A missing source or a source that is a directory is
// [rrerr.KindValidation]; any other failure is [rrerr.KindFilesystem].
func Stage(fsys fs.FS, pdfPath, workDir string, now time.Time) (Manifest, error) {
	const op = "stage"

	src, err := fsys.Open(pdfPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Manifest{}, rrerr.New(rrerr.KindValidation, op, pdfPath, fmt.Errorf("source pdf not found: %w", err))
		}

		return Manifest{}, rrerr.New(rrerr.KindFilesystem, op, pdfPath, err)
	}

	defer func() { _ = src.Close() }()

	info, err := src.Stat()
	if err != nil {
		return Manifest{}, rrerr.New(rrerr.KindFilesystem, op, pdfPath, fmt.Errorf("stat: %w", err))
	}

	if info.IsDir() {
		return Manifest{}, rrerr.New(rrerr.KindValidation, op, pdfPath, errors.New("source pdf is a directory"))
	}

	dstPath := filepath.Join(workDir, DocumentName)

	dst, err := fsys.OpenFile(dstPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return Manifest{}, rrerr.New(rrerr.KindFilesystem, op, dstPath, err)
	}

	tw := &trackingWriter{w: dst}

	_, copyErr := io.Copy(tw, src)
	closeErr := dst.Close()

	if copyErr != nil {
		if tw.err != nil {
			return Manifest{}, rrerr.New(rrerr.KindFilesystem, op, dstPath, copyErr)
		}

		return Manifest{}, rrerr.New(rrerr.KindFilesystem, op, pdfPath, fmt.Errorf("read source: %w", copyErr))
	}

	if closeErr != nil {
		return Manifest{}, rrerr.New(rrerr.KindFilesystem, op, dstPath, closeErr)
	}

	m := NewManifest(now)

	err = WriteManifest(fsys, workDir, m)
	if err != nil {
		return Manifest{}, err
	}

	return m, nil
}
