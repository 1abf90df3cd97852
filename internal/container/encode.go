package container

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"

	"github.com/calvinalkan/rrdoc/internal/rrerr"
	"github.com/calvinalkan/rrdoc/pkg/fs"
)

// entryModTime is stamped on every entry so unchanged content encodes to
// identical bytes. It is the earliest time the zip format can represent.
var entryModTime = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// EncodeOptions configures Encode. The zero value uses flate.DefaultCompression.
type EncodeOptions struct {
	// CompressionLevel is the deflate level for manifest.json and
	// data.sqlite, from -1 to 9. 0 selects flate.DefaultCompression; set
	// NoCompression to store entries instead.
	CompressionLevel int

	// NoCompression stores every entry uncompressed.
	NoCompression bool

	// Perm is the archive file mode. Defaults to 0o644.
	Perm os.FileMode
}

type entrySpec struct {
	name     string
	compress bool
}

// layout is the fixed entry order of a container.
var layout = []entrySpec{
	{name: ManifestName, compress: true},
	{name: DocumentName, compress: false},
	{name: StoreName, compress: true},
}

// ValidCompressionLevel reports whether level is accepted by Encode.
func ValidCompressionLevel(level int) bool {
	return level >= flate.DefaultCompression && level <= flate.BestCompression
}

// Encode writes the working directory workDir to archivePath.
//
// checkpoint, if non-nil, runs before anything is read; it must fold the
// store's write-ahead log into data.sqlite. A checkpoint failure aborts the
// encode and keeps the previous archive.
//
// Entries missing from workDir are skipped. The archive is written to a
// temp file next to archivePath and renamed over it, so archivePath always
// holds either the previous or the new archive.
func Encode(fsys fs.FS, workDir, archivePath string, checkpoint func() error, opts EncodeOptions) error {
	const op = "encode"

	level := opts.CompressionLevel
	if level == 0 {
		level = flate.DefaultCompression
	}

	if !ValidCompressionLevel(level) {
		return rrerr.New(rrerr.KindValidation, op, archivePath, fmt.Errorf("invalid compression level %d", level))
	}

	if checkpoint != nil {
		err := checkpoint()
		if err != nil {
			return rrerr.New(rrerr.KindStore, op, archivePath, err)
		}
	}

	present := make([]entrySpec, 0, len(layout))

	for _, e := range layout {
		ok, err := fsys.Exists(filepath.Join(workDir, e.name))
		if err != nil {
			return rrerr.New(rrerr.KindFilesystem, op, filepath.Join(workDir, e.name), err)
		}

		if ok {
			present = append(present, e)
		}
	}

	perm := opts.Perm
	if perm == 0 {
		perm = 0o644
	}

	writer := fs.NewAtomicWriter(fsys)

	err := writer.WriteFunc(archivePath, func(w io.Writer) error {
		zw := zip.NewWriter(w)
		zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
			return flate.NewWriter(out, level)
		})

		for _, e := range present {
			method := zip.Store
			if e.compress && !opts.NoCompression {
				method = zip.Deflate
			}

			err := writeEntry(fsys, zw, filepath.Join(workDir, e.name), e.name, method)
			if err != nil {
				_ = zw.Close()

				return err
			}
		}

		return zw.Close()
	}, fs.AtomicWriteOptions{SyncDir: true, Perm: perm})
	if err != nil {
		if errors.Is(err, fs.ErrAtomicWriteDirSync) {
			return rrerr.New(rrerr.KindFilesystem, op, archivePath, fmt.Errorf("archive written but not durable: %w", err))
		}

		return rrerr.New(rrerr.KindFilesystem, op, archivePath, err)
	}

	return nil
}

func writeEntry(fsys fs.FS, zw *zip.Writer, srcPath, name string, method uint16) error {
	src, err := fsys.Open(srcPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", srcPath, err)
	}

	defer func() { _ = src.Close() }()

	hdr := &zip.FileHeader{
		Name:     name,
		Method:   method,
		Modified: entryModTime,
	}
	hdr.SetMode(0o644)

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("create entry %s: %w", name, err)
	}

	_, err = io.Copy(w, src)
	if err != nil {
		return fmt.Errorf("write entry %s: %w", name, err)
	}

	return nil
}
