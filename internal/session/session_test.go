package session_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/calvinalkan/rrdoc/internal/container"
	"github.com/calvinalkan/rrdoc/internal/rrerr"
	"github.com/calvinalkan/rrdoc/internal/session"
	"github.com/calvinalkan/rrdoc/internal/store"
	"github.com/calvinalkan/rrdoc/internal/testutil"
	"github.com/calvinalkan/rrdoc/pkg/fs"
)

type env struct {
	dir      string
	workRoot string
	lockDir  string
	clock    *testutil.Clock
}

func newEnv(t *testing.T) *env {
	t.Helper()

	root := t.TempDir()

	return &env{
		dir:      filepath.Join(root, "docs"),
		workRoot: filepath.Join(root, "work"),
		lockDir:  filepath.Join(root, "locks"),
		clock:    testutil.NewClock(),
	}
}

func (e *env) manager(t *testing.T, fsys fs.FS) *session.Manager {
	t.Helper()

	m, err := session.New(session.Options{
		FS:       fsys,
		Now:      e.clock.Now,
		WorkRoot: e.workRoot,
		LockDir:  e.lockDir,
	})
	require.NoError(t, err)

	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	return m
}

func (e *env) pdf(t *testing.T, name string) string {
	t.Helper()

	return testutil.WritePDF(t, e.dir, name, name)
}

func (e *env) workDirs(t *testing.T) []string {
	t.Helper()

	entries, err := os.ReadDir(e.workRoot)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}

	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}

	return names
}

func readEntries(t *testing.T, archive string) map[string][]byte {
	t.Helper()

	zr, err := zip.OpenReader(archive)
	require.NoError(t, err)

	defer func() { _ = zr.Close() }()

	out := make(map[string][]byte)

	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)

		var buf bytes.Buffer

		_, err = buf.ReadFrom(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())

		out[f.Name] = buf.Bytes()
	}

	return out
}

func note(content string, page int) store.CreateAnnotationInput {
	return store.CreateAnnotationInput{
		Type:       store.AnnotationNote,
		PageNumber: page,
		Content:    testutil.Ptr(content),
	}
}

func Test_Import_Then_Open_Round_Trips_PDF_And_Title(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	m := e.manager(t, fs.NewReal())
	src := e.pdf(t, "Attention Is All You Need.pdf")

	info, err := m.Import(t.Context(), src, session.ImportOptions{})
	require.NoError(t, err)

	archive := filepath.Join(e.dir, "Attention Is All You Need.rr")
	assert.Equal(t, archive, info.ArchivePath)
	assert.Equal(t, "Attention Is All You Need", info.Title)
	assert.FileExists(t, archive, "import must write the container immediately")

	require.NoError(t, m.Close(t.Context()))

	reopened, err := m.Open(t.Context(), archive)
	require.NoError(t, err)
	assert.Equal(t, "Attention Is All You Need", reopened.Title)
	assert.Nil(t, reopened.PageCount)

	var buf bytes.Buffer

	n, err := m.ReadDocument(t.Context(), &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)
	assert.Equal(t, testutil.ReadFile(t, src), buf.Bytes())
	assert.Equal(t, testutil.ReadFile(t, src), testutil.ReadFile(t, reopened.PDFPath))
}

func Test_Open_Imports_PDF_When_Extension_Is_PDF(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	m := e.manager(t, fs.NewReal())
	src := e.pdf(t, "paper.PDF")

	info, err := m.Open(t.Context(), src)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(e.dir, "paper.rr"), info.ArchivePath)
	assert.True(t, m.IsOpen())
}

func Test_Open_Refuses_PDF_When_Sibling_Container_Exists(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	m := e.manager(t, fs.NewReal())
	src := e.pdf(t, "paper.pdf")

	info, err := m.Open(t.Context(), src)
	require.NoError(t, err)

	_, err = m.CreateAnnotation(t.Context(), note("keep me", 1))
	require.NoError(t, err)
	require.NoError(t, m.Close(t.Context()))

	_, err = m.Open(t.Context(), src)
	require.Error(t, err)
	assert.Equal(t, rrerr.KindValidation, rrerr.KindOf(err))
	assert.False(t, m.IsOpen())

	_, err = m.Open(t.Context(), info.ArchivePath)
	require.NoError(t, err)

	annotations, err := m.ListAnnotations(t.Context(), nil)
	require.NoError(t, err)
	require.Len(t, annotations, 1)
	assert.Equal(t, "keep me", *annotations[0].Content)
}

func Test_Open_Returns_UnsupportedFormat_When_Extension_Unknown(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	m := e.manager(t, fs.NewReal())

	path := filepath.Join(e.dir, "notes.docx")
	require.NoError(t, os.MkdirAll(e.dir, 0o750))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	_, err := m.Open(t.Context(), path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, rrerr.ErrUnsupportedFormat), "err = %v", err)
	assert.False(t, m.IsOpen())
}

func Test_Save_Produces_Identical_PDF_And_Manifest_When_Called_Twice(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	m := e.manager(t, fs.NewReal())

	info, err := m.Import(t.Context(), e.pdf(t, "paper.pdf"), session.ImportOptions{})
	require.NoError(t, err)

	_, err = m.CreateAnnotation(t.Context(), note("first", 1))
	require.NoError(t, err)

	require.NoError(t, m.Save(t.Context()))
	first := readEntries(t, info.ArchivePath)

	require.NoError(t, m.Save(t.Context()))
	second := readEntries(t, info.ArchivePath)

	assert.Equal(t, first[container.DocumentName], second[container.DocumentName])
	assert.Equal(t, first[container.ManifestName], second[container.ManifestName])
	assert.Contains(t, second, container.StoreName)
}

func Test_Open_Persists_Previous_Session_When_Another_Document_Opened(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	m := e.manager(t, fs.NewReal())

	alpha, err := m.Import(t.Context(), e.pdf(t, "alpha.pdf"), session.ImportOptions{})
	require.NoError(t, err)

	created, err := m.CreateAnnotation(t.Context(), note("unsaved in alpha", 2))
	require.NoError(t, err)

	beta, err := m.Import(t.Context(), e.pdf(t, "beta.pdf"), session.ImportOptions{})
	require.NoError(t, err)

	current, err := m.Info(t.Context())
	require.NoError(t, err)
	assert.Equal(t, beta.ArchivePath, current.ArchivePath)

	annotations, err := m.ListAnnotations(t.Context(), nil)
	require.NoError(t, err)
	assert.Empty(t, annotations, "beta must not see alpha's annotations")

	_, err = m.Open(t.Context(), alpha.ArchivePath)
	require.NoError(t, err)

	got, found, err := m.GetAnnotation(t.Context(), created.ID)
	require.NoError(t, err)
	require.True(t, found, "alpha's edit must be persisted before it was replaced")
	assert.Equal(t, "unsaved in alpha", *got.Content)

	assert.Len(t, e.workDirs(t), 1, "replaced working directories must be removed")
}

func Test_Open_Keeps_Current_Session_When_Persisting_It_Fails(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	faulty := fs.NewFaulty(fs.NewReal())
	m := e.manager(t, faulty)

	alpha, err := m.Import(t.Context(), e.pdf(t, "alpha.pdf"), session.ImportOptions{})
	require.NoError(t, err)

	created, err := m.CreateAnnotation(t.Context(), note("pending", 1))
	require.NoError(t, err)

	faulty.FailOn(fs.OpRename, "alpha.rr", syscall.EIO)

	_, err = m.Import(t.Context(), e.pdf(t, "beta.pdf"), session.ImportOptions{})
	require.Error(t, err)
	assert.Equal(t, rrerr.KindFilesystem, rrerr.KindOf(err))
	assert.NoFileExists(t, filepath.Join(e.dir, "beta.rr"))

	current, err := m.Info(t.Context())
	require.NoError(t, err)
	assert.Equal(t, alpha.ArchivePath, current.ArchivePath)

	_, found, err := m.GetAnnotation(t.Context(), created.ID)
	require.NoError(t, err)
	assert.True(t, found)

	faulty.Reset()
	require.NoError(t, m.Save(t.Context()))
}

func Test_Open_Keeps_Current_Session_When_New_Archive_Is_Corrupt(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	m := e.manager(t, fs.NewReal())

	alpha, err := m.Import(t.Context(), e.pdf(t, "alpha.pdf"), session.ImportOptions{})
	require.NoError(t, err)

	created, err := m.CreateAnnotation(t.Context(), note("still here", 1))
	require.NoError(t, err)

	corrupt := filepath.Join(e.dir, "corrupt.rr")
	require.NoError(t, os.WriteFile(corrupt, []byte("not a zip"), 0o600))

	_, err = m.Open(t.Context(), corrupt)
	require.Error(t, err)
	assert.True(t, errors.Is(err, rrerr.ErrArchiveCorrupt), "err = %v", err)

	current, err := m.Info(t.Context())
	require.NoError(t, err)
	assert.Equal(t, alpha.ArchivePath, current.ArchivePath)

	_, found, err := m.GetAnnotation(t.Context(), created.ID)
	require.NoError(t, err)
	assert.True(t, found)

	assert.Len(t, e.workDirs(t), 1, "failed open must remove its working directory")
}

func Test_Close_Keeps_Session_Open_When_Persist_Fails(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	faulty := fs.NewFaulty(fs.NewReal())
	m := e.manager(t, faulty)

	info, err := m.Import(t.Context(), e.pdf(t, "paper.pdf"), session.ImportOptions{})
	require.NoError(t, err)

	lastGood := testutil.ReadFile(t, info.ArchivePath)

	_, err = m.CreateAnnotation(t.Context(), note("retry me", 3))
	require.NoError(t, err)

	faulty.FailWritesAfter(".paper.rr.tmp", 32, syscall.ENOSPC)

	err = m.Close(t.Context())
	require.Error(t, err)
	assert.True(t, errors.Is(err, syscall.ENOSPC), "err = %v", err)
	assert.True(t, m.IsOpen())
	assert.Equal(t, lastGood, testutil.ReadFile(t, info.ArchivePath), "failed save must keep last-good archive")

	annotations, err := m.ListAnnotations(t.Context(), nil)
	require.NoError(t, err)
	assert.Len(t, annotations, 1)

	faulty.Reset()
	require.NoError(t, m.Close(t.Context()))
	assert.False(t, m.IsOpen())
	assert.Empty(t, e.workDirs(t))
}

func Test_Close_Is_NoOp_When_Nothing_Open(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	m := e.manager(t, fs.NewReal())

	require.NoError(t, m.Close(t.Context()))
	require.NoError(t, m.Close(t.Context()))
	require.NoError(t, m.Shutdown(t.Context()))
}

func Test_Operations_Return_NoActiveSession_When_Closed(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	m := e.manager(t, fs.NewReal())
	ctx := t.Context()

	ops := map[string]func() error{
		"save": func() error { return m.Save(ctx) },
		"info": func() error { _, err := m.Info(ctx); return err },
		"read document": func() error {
			_, err := m.ReadDocument(ctx, &bytes.Buffer{})

			return err
		},
		"list annotations":  func() error { _, err := m.ListAnnotations(ctx, nil); return err },
		"get annotation":    func() error { _, _, err := m.GetAnnotation(ctx, "x"); return err },
		"create annotation": func() error { _, err := m.CreateAnnotation(ctx, note("x", 1)); return err },
		"update annotation": func() error {
			_, err := m.UpdateAnnotation(ctx, store.UpdateAnnotationInput{ID: "x"})

			return err
		},
		"delete annotation": func() error { _, err := m.DeleteAnnotation(ctx, "x"); return err },
		"get metadata":      func() error { _, _, err := m.GetMetadata(ctx, "title"); return err },
		"set metadata":      func() error { return m.SetMetadata(ctx, "title", "x") },
		"list metadata":     func() error { _, err := m.ListMetadata(ctx); return err },
		"set document metadata": func() error {
			return m.SetDocumentMetadata(ctx, session.DocumentMetadata{LastPage: testutil.Ptr(1)})
		},
	}

	for name, op := range ops {
		err := op()
		require.Error(t, err, name)
		assert.True(t, errors.Is(err, rrerr.ErrNoActiveSession), "%s: err = %v", name, err)
		assert.Equal(t, rrerr.KindNoActiveSession, rrerr.KindOf(err), name)
	}
}

func Test_Annotations_Follow_CRUD_Semantics_When_Session_Open(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	m := e.manager(t, fs.NewReal())

	_, err := m.Import(t.Context(), e.pdf(t, "paper.pdf"), session.ImportOptions{})
	require.NoError(t, err)

	position := &store.PositionData{
		Rects:      []store.Rect{{X: 1, Y: 2, Width: 3, Height: 4}},
		PageWidth:  612,
		PageHeight: 792,
	}

	created, err := m.CreateAnnotation(t.Context(), store.CreateAnnotationInput{
		Type:       store.AnnotationHighlight,
		PageNumber: 5,
		Color:      testutil.Ptr("yellow"),
		Content:    testutil.Ptr("key finding"),
		Position:   position,
	})
	require.NoError(t, err)

	all, err := m.ListAnnotations(t.Context(), nil)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, created.ID, all[0].ID)

	other, err := m.ListAnnotations(t.Context(), testutil.Ptr(6))
	require.NoError(t, err)
	assert.Empty(t, other)

	updated, err := m.UpdateAnnotation(t.Context(), store.UpdateAnnotationInput{ID: created.ID, Color: testutil.Ptr("green")})
	require.NoError(t, err)
	require.True(t, updated)

	got, found, err := m.GetAnnotation(t.Context(), created.ID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "green", *got.Color)
	assert.Equal(t, "key finding", *got.Content)

	if diff := cmp.Diff(position, got.Position); diff != "" {
		t.Fatalf("position changed (-want +got):\n%s", diff)
	}

	assert.True(t, got.UpdatedAt.After(created.UpdatedAt))

	deleted, err := m.DeleteAnnotation(t.Context(), "no-such-id")
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = m.DeleteAnnotation(t.Context(), created.ID)
	require.NoError(t, err)
	assert.True(t, deleted)
}

func Test_ListAnnotations_Orders_By_Page_When_Created_Out_Of_Order(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	m := e.manager(t, fs.NewReal())

	info, err := m.Import(t.Context(), e.pdf(t, "paper.pdf"), session.ImportOptions{})
	require.NoError(t, err)

	for _, page := range []int{3, 1, 2} {
		_, err := m.CreateAnnotation(t.Context(), note("page", page))
		require.NoError(t, err)
	}

	// Ordering must survive a save and reopen.
	require.NoError(t, m.Close(t.Context()))
	_, err = m.Open(t.Context(), info.ArchivePath)
	require.NoError(t, err)

	annotations, err := m.ListAnnotations(t.Context(), nil)
	require.NoError(t, err)

	pages := make([]int, 0, len(annotations))
	for _, a := range annotations {
		pages = append(pages, a.PageNumber)
	}

	assert.Equal(t, []int{1, 2, 3}, pages)
}

func Test_Import_Leaves_Nothing_Behind_When_Encode_Fails(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	faulty := fs.NewFaulty(fs.NewReal())
	m := e.manager(t, faulty)

	src := e.pdf(t, "doc.pdf")
	faulty.FailWritesAfter(".doc.rr.tmp", 64, syscall.ENOSPC)

	_, err := m.Import(t.Context(), src, session.ImportOptions{})
	require.Error(t, err)
	assert.Equal(t, rrerr.KindFilesystem, rrerr.KindOf(err))

	assert.NoFileExists(t, filepath.Join(e.dir, "doc.rr"))
	assert.Empty(t, e.workDirs(t))
	assert.False(t, m.IsOpen())

	leftovers, err := filepath.Glob(filepath.Join(e.dir, ".doc.rr.tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func Test_Import_Returns_Validation_Error_When_Source_Missing(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	m := e.manager(t, fs.NewReal())

	_, err := m.Import(t.Context(), filepath.Join(e.dir, "ghost.pdf"), session.ImportOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, rrerr.ErrValidation), "err = %v", err)
	assert.NoFileExists(t, filepath.Join(e.dir, "ghost.rr"))
}

func Test_Import_Refuses_Existing_Container_When_Overwrite_Unset(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	m := e.manager(t, fs.NewReal())
	src := e.pdf(t, "paper.pdf")

	info, err := m.Import(t.Context(), src, session.ImportOptions{})
	require.NoError(t, err)

	_, err = m.CreateAnnotation(t.Context(), note("precious", 1))
	require.NoError(t, err)
	require.NoError(t, m.Close(t.Context()))

	_, err = m.Import(t.Context(), src, session.ImportOptions{})
	require.Error(t, err)
	assert.Equal(t, rrerr.KindValidation, rrerr.KindOf(err))

	_, err = m.Open(t.Context(), info.ArchivePath)
	require.NoError(t, err)

	annotations, err := m.ListAnnotations(t.Context(), nil)
	require.NoError(t, err)
	assert.Len(t, annotations, 1)

	require.NoError(t, m.Close(t.Context()))

	_, err = m.Import(t.Context(), src, session.ImportOptions{Overwrite: true})
	require.NoError(t, err)

	annotations, err = m.ListAnnotations(t.Context(), nil)
	require.NoError(t, err)
	assert.Empty(t, annotations)
}

func Test_Import_Writes_To_Dest_When_Given(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	m := e.manager(t, fs.NewReal())

	dest := filepath.Join(e.dir, "library", "renamed.rr")
	require.NoError(t, os.MkdirAll(filepath.Dir(dest), 0o750))

	info, err := m.Import(t.Context(), e.pdf(t, "paper.pdf"), session.ImportOptions{Dest: dest})
	require.NoError(t, err)
	assert.Equal(t, dest, info.ArchivePath)
	assert.Equal(t, "paper", info.Title)
	assert.FileExists(t, dest)
}

func Test_Open_Synthesizes_Manifest_When_Archive_Has_None(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	m := e.manager(t, fs.NewReal())

	require.NoError(t, os.MkdirAll(e.dir, 0o750))
	archive := filepath.Join(e.dir, "legacy.rr")

	var buf bytes.Buffer

	zw := zip.NewWriter(&buf)
	w, err := zw.Create(container.DocumentName)
	require.NoError(t, err)
	_, err = w.Write(testutil.MinimalPDF)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(archive, buf.Bytes(), 0o600))

	info, err := m.Open(t.Context(), archive)
	require.NoError(t, err)
	assert.Equal(t, "legacy", info.Title)

	require.NoError(t, m.Save(t.Context()))

	entries := readEntries(t, archive)
	assert.Contains(t, entries, container.ManifestName)
	assert.Contains(t, entries, container.StoreName)
	assert.Equal(t, testutil.MinimalPDF, entries[container.DocumentName])
}

func Test_Info_Reports_Page_State_When_Metadata_Set(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	m := e.manager(t, fs.NewReal())

	_, err := m.Import(t.Context(), e.pdf(t, "paper.pdf"), session.ImportOptions{})
	require.NoError(t, err)

	require.NoError(t, m.SetDocumentMetadata(t.Context(), session.DocumentMetadata{
		Title:     testutil.Ptr("A Better Title"),
		PageCount: testutil.Ptr(12),
		LastPage:  testutil.Ptr(4),
	}))

	info, err := m.Info(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "A Better Title", info.Title)
	require.NotNil(t, info.PageCount)
	assert.Equal(t, 12, *info.PageCount)
	require.NotNil(t, info.LastPage)
	assert.Equal(t, 4, *info.LastPage)

	require.NoError(t, m.SetMetadata(t.Context(), store.MetaLastPage, "not-a-number"))

	info, err = m.Info(t.Context())
	require.NoError(t, err)
	assert.Nil(t, info.LastPage)

	err = m.SetDocumentMetadata(t.Context(), session.DocumentMetadata{PageCount: testutil.Ptr(-1)})
	require.Error(t, err)
	assert.Equal(t, rrerr.KindValidation, rrerr.KindOf(err))

	entries, err := m.ListMetadata(t.Context())
	require.NoError(t, err)

	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		keys = append(keys, entry.Key)
	}

	assert.Equal(t, []string{store.MetaLastPage, store.MetaPageCount, store.MetaTitle}, keys)
}

func Test_Open_Returns_ContainerBusy_When_Another_Manager_Holds_It(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	first := e.manager(t, fs.NewReal())
	second := e.manager(t, fs.NewReal())

	info, err := first.Import(t.Context(), e.pdf(t, "shared.pdf"), session.ImportOptions{})
	require.NoError(t, err)

	_, err = second.Open(t.Context(), info.ArchivePath)
	require.Error(t, err)
	assert.True(t, errors.Is(err, rrerr.ErrContainerBusy), "err = %v", err)
	assert.False(t, second.IsOpen())

	// Reopening its own container keeps the lock.
	_, err = first.Open(t.Context(), info.ArchivePath)
	require.NoError(t, err)

	_, err = second.Open(t.Context(), info.ArchivePath)
	require.Error(t, err)
	assert.True(t, errors.Is(err, rrerr.ErrContainerBusy), "err = %v", err)

	require.NoError(t, first.Close(t.Context()))

	_, err = second.Open(t.Context(), info.ArchivePath)
	require.NoError(t, err)
}

func Test_Shutdown_Keeps_WorkDir_When_Persist_Fails(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	faulty := fs.NewFaulty(fs.NewReal())
	m := e.manager(t, faulty)

	_, err := m.Import(t.Context(), e.pdf(t, "paper.pdf"), session.ImportOptions{})
	require.NoError(t, err)

	faulty.FailOn(fs.OpRename, "paper.rr", syscall.EIO)

	err = m.Shutdown(t.Context())
	require.Error(t, err)
	assert.False(t, m.IsOpen())
	assert.Len(t, e.workDirs(t), 1)
}

func Test_Manager_Serializes_Operations_When_Called_Concurrently(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	m := e.manager(t, fs.NewReal())

	_, err := m.Import(t.Context(), e.pdf(t, "paper.pdf"), session.ImportOptions{})
	require.NoError(t, err)

	const writers = 8

	const perWriter = 10

	g, ctx := errgroup.WithContext(t.Context())

	for w := range writers {
		g.Go(func() error {
			for i := range perWriter {
				_, err := m.CreateAnnotation(ctx, note("concurrent", w*perWriter+i))
				if err != nil {
					return err
				}

				if i%3 == 0 {
					err = m.Save(ctx)
					if err != nil {
						return err
					}
				}
			}

			return nil
		})
	}

	require.NoError(t, g.Wait())

	annotations, err := m.ListAnnotations(t.Context(), nil)
	require.NoError(t, err)
	assert.Len(t, annotations, writers*perWriter)

	for i := 1; i < len(annotations); i++ {
		assert.LessOrEqual(t, annotations[i-1].PageNumber, annotations[i].PageNumber)
	}
}

func Test_New_Returns_Validation_Error_When_Compression_Level_Invalid(t *testing.T) {
	t.Parallel()

	_, err := session.New(session.Options{CompressionLevel: 42})
	require.Error(t, err)
	assert.Equal(t, rrerr.KindValidation, rrerr.KindOf(err))
}
