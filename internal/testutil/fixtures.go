package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// MinimalPDF is a tiny but structurally valid single-page PDF.
// The session layer treats PDF bytes as opaque; tests only compare them.
var MinimalPDF = []byte(`%PDF-1.4
1 0 obj << /Type /Catalog /Pages 2 0 R >> endobj
2 0 obj << /Type /Pages /Kids [3 0 R] /Count 1 >> endobj
3 0 obj << /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >> endobj
trailer << /Root 1 0 R >>
%%EOF
`)

// WritePDF writes MinimalPDF (with an optional marker appended so documents
// can be told apart) to dir/name and returns the path.
func WritePDF(t *testing.T, dir, name, marker string) string {
	t.Helper()

	path := filepath.Join(dir, name)

	data := append([]byte{}, MinimalPDF...)
	data = append(data, []byte("% "+marker+"\n")...)

	err := os.MkdirAll(filepath.Dir(path), 0o750)
	if err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}

	err = os.WriteFile(path, data, 0o600)
	if err != nil {
		t.Fatalf("write pdf %s: %v", path, err)
	}

	return path
}

// ReadFile reads path or fails the test.
func ReadFile(t *testing.T, path string) []byte {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}

	return data
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
