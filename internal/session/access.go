package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/calvinalkan/rrdoc/internal/container"
	"github.com/calvinalkan/rrdoc/internal/rrerr"
	"github.com/calvinalkan/rrdoc/internal/store"
)

// withSession runs fn against the open session while holding the manager
// lock. Returns [rrerr.ErrNoActiveSession] if nothing is open.
func (m *Manager) withSession(op string, fn func(*Session) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return rrerr.New(rrerr.KindNoActiveSession, op, "", nil)
	}

	return fn(m.current)
}

// Info returns the summary of the open document.
func (m *Manager) Info(ctx context.Context) (DocumentInfo, error) {
	var info DocumentInfo

	err := m.withSession("info", func(s *Session) error {
		var err error

		info, err = m.documentInfo(ctx, s)

		return err
	})

	return info, err
}

// IsOpen reports whether a session is open.
func (m *Manager) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.current != nil
}

// ReadDocument copies the raw PDF bytes of the open document to w and
// returns the number of bytes written.
func (m *Manager) ReadDocument(ctx context.Context, w io.Writer) (int64, error) {
	const op = "read document"

	var n int64

	err := m.withSession(op, func(s *Session) error {
		err := ctx.Err()
		if err != nil {
			return err
		}

		path := s.documentPath()

		f, err := m.fs.Open(path)
		if err != nil {
			return rrerr.New(rrerr.KindFilesystem, op, path, err)
		}

		defer func() { _ = f.Close() }()

		n, err = io.Copy(w, f)
		if err != nil {
			return rrerr.New(rrerr.KindFilesystem, op, path, err)
		}

		return nil
	})

	return n, err
}

// ListAnnotations lists annotations of the open document, all pages when
// page is nil.
func (m *Manager) ListAnnotations(ctx context.Context, page *int) ([]store.Annotation, error) {
	var out []store.Annotation

	err := m.withSession("list annotations", func(s *Session) error {
		var err error

		out, err = s.store.ListAnnotations(ctx, page)

		return err
	})

	return out, err
}

// GetAnnotation returns one annotation by id.
func (m *Manager) GetAnnotation(ctx context.Context, id string) (store.Annotation, bool, error) {
	var (
		out   store.Annotation
		found bool
	)

	err := m.withSession("get annotation", func(s *Session) error {
		var err error

		out, found, err = s.store.GetAnnotation(ctx, id)

		return err
	})

	return out, found, err
}

// CreateAnnotation adds an annotation to the open document.
func (m *Manager) CreateAnnotation(ctx context.Context, input store.CreateAnnotationInput) (store.Annotation, error) {
	var out store.Annotation

	err := m.withSession("create annotation", func(s *Session) error {
		var err error

		out, err = s.store.CreateAnnotation(ctx, input)

		return err
	})

	return out, err
}

// UpdateAnnotation applies a partial update and reports whether the
// annotation existed.
func (m *Manager) UpdateAnnotation(ctx context.Context, input store.UpdateAnnotationInput) (bool, error) {
	var updated bool

	err := m.withSession("update annotation", func(s *Session) error {
		var err error

		updated, err = s.store.UpdateAnnotation(ctx, input)

		return err
	})

	return updated, err
}

// DeleteAnnotation removes an annotation and reports whether it existed.
func (m *Manager) DeleteAnnotation(ctx context.Context, id string) (bool, error) {
	var deleted bool

	err := m.withSession("delete annotation", func(s *Session) error {
		var err error

		deleted, err = s.store.DeleteAnnotation(ctx, id)

		return err
	})

	return deleted, err
}

// GetMetadata returns a metadata value; found is false when unset.
func (m *Manager) GetMetadata(ctx context.Context, key string) (string, bool, error) {
	var (
		value string
		found bool
	)

	err := m.withSession("get metadata", func(s *Session) error {
		var err error

		value, found, err = s.store.GetMetadata(ctx, key)

		return err
	})

	return value, found, err
}

// SetMetadata upserts a metadata value.
func (m *Manager) SetMetadata(ctx context.Context, key, value string) error {
	return m.withSession("set metadata", func(s *Session) error {
		return s.store.SetMetadata(ctx, key, value)
	})
}

// ListMetadata returns all metadata entries sorted by key.
func (m *Manager) ListMetadata(ctx context.Context) ([]store.MetadataEntry, error) {
	var out []store.MetadataEntry

	err := m.withSession("list metadata", func(s *Session) error {
		var err error

		out, err = s.store.ListMetadata(ctx)

		return err
	})

	return out, err
}

// DocumentMetadata is a partial update of the reserved metadata keys.
// Nil fields are left unchanged.
type DocumentMetadata struct {
	Title     *string
	PageCount *int
	LastPage  *int
}

// SetDocumentMetadata writes the non-nil reserved keys.
func (m *Manager) SetDocumentMetadata(ctx context.Context, md DocumentMetadata) error {
	const op = "set document metadata"

	if md.PageCount != nil && *md.PageCount < 0 {
		return rrerr.New(rrerr.KindValidation, op, store.MetaPageCount,
			fmt.Errorf("page count must be non-negative, got %d", *md.PageCount))
	}

	if md.LastPage != nil && *md.LastPage < 0 {
		return rrerr.New(rrerr.KindValidation, op, store.MetaLastPage,
			fmt.Errorf("last page must be non-negative, got %d", *md.LastPage))
	}

	return m.withSession(op, func(s *Session) error {
		if md.Title != nil {
			err := s.store.SetMetadata(ctx, store.MetaTitle, *md.Title)
			if err != nil {
				return err
			}
		}

		if md.PageCount != nil {
			err := s.store.SetMetadata(ctx, store.MetaPageCount, strconv.Itoa(*md.PageCount))
			if err != nil {
				return err
			}
		}

		if md.LastPage != nil {
			err := s.store.SetMetadata(ctx, store.MetaLastPage, strconv.Itoa(*md.LastPage))
			if err != nil {
				return err
			}
		}

		return nil
	})
}

// documentInfo reads the reserved metadata keys. page_count and last_page
// are parsed leniently: an unparsable value is logged and reported as unset.
func (m *Manager) documentInfo(ctx context.Context, s *Session) (DocumentInfo, error) {
	info := DocumentInfo{
		ArchivePath: s.archivePath,
		PDFPath:     s.documentPath(),
	}

	title, found, err := s.store.GetMetadata(ctx, store.MetaTitle)
	if err != nil {
		return DocumentInfo{}, err
	}

	if !found || title == "" {
		title = container.Title(s.archivePath)
	}

	info.Title = title

	info.PageCount, err = m.intMetadata(ctx, s, store.MetaPageCount)
	if err != nil {
		return DocumentInfo{}, err
	}

	info.LastPage, err = m.intMetadata(ctx, s, store.MetaLastPage)
	if err != nil {
		return DocumentInfo{}, err
	}

	return info, nil
}

func (m *Manager) intMetadata(ctx context.Context, s *Session, key string) (*int, error) {
	raw, found, err := s.store.GetMetadata(ctx, key)
	if err != nil || !found {
		return nil, err
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) {
			err = numErr.Err
		}

		m.log.Warn("ignoring unparsable metadata", "archive", s.archivePath, "key", key, "value", raw, "err", err)

		return nil, nil
	}

	return &n, nil
}
