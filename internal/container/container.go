// Package container converts between a .rr archive and a working directory.
//
// A container is a zip archive with up to three entries:
//
//	manifest.json   deflated
//	document.pdf    stored, so the PDF bytes are kept exactly
//	data.sqlite     deflated
//
// [Decode] extracts an archive into a working directory, [Stage] builds the
// working directory of a new container from a PDF, and [Encode] writes a
// working directory back to an archive, replacing it atomically. [Cleanup]
// removes a working directory.
//
// The package never opens the SQLite store itself; the caller opens it once
// the working directory is materialized and supplies a checkpoint hook to
// Encode.
package container

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/calvinalkan/rrdoc/internal/rrerr"
	"github.com/calvinalkan/rrdoc/internal/store"
	"github.com/calvinalkan/rrdoc/pkg/fs"
)

// Entry names inside a container.
const (
	ManifestName = "manifest.json"
	DocumentName = "document.pdf"
	StoreName    = store.FileName
)

// Extension is the file extension of a container, including the dot.
const Extension = ".rr"

// DefaultArchivePath returns pdfPath with its extension replaced by [Extension].
func DefaultArchivePath(pdfPath string) string {
	ext := filepath.Ext(pdfPath)

	return strings.TrimSuffix(pdfPath, ext) + Extension
}

// Title derives a document title from a file name: the base name without
// its extension. Returns "" when nothing is left.
func Title(path string) string {
	base := filepath.Base(path)
	if base == "." || base == string(filepath.Separator) {
		return ""
	}

	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Cleanup removes workDir and everything below it.
// Callers treat failures as hygiene problems and log them.
func Cleanup(fsys fs.FS, workDir string) error {
	if workDir == "" {
		return nil
	}

	err := fsys.RemoveAll(workDir)
	if err != nil {
		return rrerr.New(rrerr.KindFilesystem, "cleanup", workDir, fmt.Errorf("remove working directory: %w", err))
	}

	return nil
}
