package container

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/mod/semver"

	"github.com/calvinalkan/rrdoc/internal/rrerr"
	"github.com/calvinalkan/rrdoc/pkg/fs"
)

// Manifest format identifier and the version written by this build.
const (
	ManifestFormat  = "research-reader"
	ManifestVersion = "1.0.0"
)

// supportedMajor is the manifest major version this build reads.
const supportedMajor = "v1"

// Manifest is the descriptive record written once at import.
type Manifest struct {
	Version   string    `json:"version"`
	Format    string    `json:"format"`
	CreatedAt time.Time `json:"created_at"`
}

// NewManifest returns a manifest for a container created at now.
func NewManifest(now time.Time) Manifest {
	return Manifest{
		Version:   ManifestVersion,
		Format:    ManifestFormat,
		CreatedAt: now.UTC().Truncate(time.Second),
	}
}

// Validate checks that m was written by a compatible build.
// Returns an [rrerr.KindUnsupportedFormat] error otherwise.
func (m Manifest) Validate() error {
	if m.Format != ManifestFormat {
		return rrerr.New(rrerr.KindUnsupportedFormat, "validate manifest", ManifestName,
			fmt.Errorf("format %q, want %q", m.Format, ManifestFormat))
	}

	v := m.Version
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}

	if !semver.IsValid(v) {
		return rrerr.New(rrerr.KindUnsupportedFormat, "validate manifest", ManifestName,
			fmt.Errorf("version %q is not a semantic version", m.Version))
	}

	if semver.Major(v) != supportedMajor {
		return rrerr.New(rrerr.KindUnsupportedFormat, "validate manifest", ManifestName,
			fmt.Errorf("version %s is not supported (want %s.x.x)", m.Version, strings.TrimPrefix(supportedMajor, "v")))
	}

	return nil
}

// WriteManifest writes m as indented JSON to workDir/manifest.json.
func WriteManifest(fsys fs.FS, workDir string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return rrerr.New(rrerr.KindFilesystem, "write manifest", ManifestName, fmt.Errorf("encode: %w", err))
	}

	data = append(data, '\n')
	path := filepath.Join(workDir, ManifestName)

	err = fsys.WriteFile(path, data, 0o600)
	if err != nil {
		return rrerr.New(rrerr.KindFilesystem, "write manifest", path, err)
	}

	return nil
}

// ReadManifest loads workDir/manifest.json.
// A missing file returns an error satisfying errors.Is(err, os.ErrNotExist).
// Malformed JSON is [rrerr.KindArchiveCorrupt].
func ReadManifest(fsys fs.FS, workDir string) (Manifest, error) {
	path := filepath.Join(workDir, ManifestName)

	data, err := fsys.ReadFile(path)
	if err != nil {
		return Manifest{}, rrerr.New(rrerr.KindFilesystem, "read manifest", path, err)
	}

	return parseManifest(data)
}

func parseManifest(data []byte) (Manifest, error) {
	var m Manifest

	err := json.Unmarshal(data, &m)
	if err != nil {
		return Manifest{}, rrerr.New(rrerr.KindArchiveCorrupt, "read manifest", ManifestName, fmt.Errorf("decode: %w", err))
	}

	if m.Format == "" || m.Version == "" {
		return Manifest{}, rrerr.New(rrerr.KindArchiveCorrupt, "read manifest", ManifestName,
			errors.New("format and version are required"))
	}

	return m, nil
}
