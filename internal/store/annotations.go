package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/calvinalkan/rrdoc/internal/rrerr"
)

const annotationColumns = `id, type, page_number, color, content, position_data, created_at, updated_at`

// ListAnnotations returns annotations ordered by page, then creation order.
// A nil page lists every page.
func (s *Store) ListAnnotations(ctx context.Context, page *int) ([]Annotation, error) {
	const op = "list annotations"

	db, err := s.db(op)
	if err != nil {
		return nil, err
	}

	var (
		rows     *sql.Rows
		queryErr error
	)

	// rowid breaks ties between annotations created within the same instant.
	if page != nil {
		rows, queryErr = db.QueryContext(ctx, `
			SELECT `+annotationColumns+`
			FROM annotations
			WHERE page_number = ?
			ORDER BY created_at ASC, rowid ASC`, *page)
	} else {
		rows, queryErr = db.QueryContext(ctx, `
			SELECT `+annotationColumns+`
			FROM annotations
			ORDER BY page_number ASC, created_at ASC, rowid ASC`)
	}

	if queryErr != nil {
		return nil, rrerr.New(rrerr.KindStore, op, "", fmt.Errorf("query: %w", queryErr))
	}

	defer func() { _ = rows.Close() }()

	annotations := make([]Annotation, 0)

	for rows.Next() {
		a, scanErr := scanAnnotation(rows)
		if scanErr != nil {
			return nil, rrerr.New(rrerr.KindStore, op, "", scanErr)
		}

		annotations = append(annotations, a)
	}

	err = rows.Err()
	if err != nil {
		return nil, rrerr.New(rrerr.KindStore, op, "", fmt.Errorf("rows: %w", err))
	}

	return annotations, nil
}

// GetAnnotation returns the annotation with id. found is false if no such row exists.
func (s *Store) GetAnnotation(ctx context.Context, id string) (Annotation, bool, error) {
	const op = "get annotation"

	db, err := s.db(op)
	if err != nil {
		return Annotation{}, false, err
	}

	row := db.QueryRowContext(ctx, `SELECT `+annotationColumns+` FROM annotations WHERE id = ?`, id)

	a, err := scanAnnotation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Annotation{}, false, nil
	}

	if err != nil {
		return Annotation{}, false, rrerr.New(rrerr.KindStore, op, id, err)
	}

	return a, true, nil
}

// CreateAnnotation assigns an ID and timestamps, inserts the row, and returns
// the full record.
func (s *Store) CreateAnnotation(ctx context.Context, input CreateAnnotationInput) (Annotation, error) {
	const op = "create annotation"

	db, err := s.db(op)
	if err != nil {
		return Annotation{}, err
	}

	if !input.Type.Valid() {
		return Annotation{}, rrerr.New(rrerr.KindValidation, op, "",
			fmt.Errorf("annotation type must be highlight, note or bookmark, got %s", input.Type))
	}

	if input.PageNumber < 0 {
		return Annotation{}, rrerr.New(rrerr.KindValidation, op, "",
			fmt.Errorf("page number must be non-negative, got %d", input.PageNumber))
	}

	position, err := encodePosition(input.Position)
	if err != nil {
		return Annotation{}, rrerr.New(rrerr.KindValidation, op, "", err)
	}

	id, err := newAnnotationID()
	if err != nil {
		return Annotation{}, rrerr.New(rrerr.KindStore, op, "", err)
	}

	now := s.now().UTC()
	stamp := formatTime(now)

	_, err = db.ExecContext(ctx, `
		INSERT INTO annotations (`+annotationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		input.Type.String(),
		input.PageNumber,
		nullString(input.Color),
		nullString(input.Content),
		position,
		stamp,
		stamp,
	)
	if err != nil {
		return Annotation{}, rrerr.New(rrerr.KindStore, op, id, fmt.Errorf("insert: %w", err))
	}

	// Round-trip through the stored format so callers see exactly what a
	// later List returns.
	created, err := parseTime(stamp)
	if err != nil {
		return Annotation{}, rrerr.New(rrerr.KindInvalidRecordEncoding, op, id, err)
	}

	return Annotation{
		ID:         id,
		Type:       input.Type,
		PageNumber: input.PageNumber,
		Color:      cloneString(input.Color),
		Content:    cloneString(input.Content),
		Position:   input.Position,
		CreatedAt:  created,
		UpdatedAt:  created,
	}, nil
}

// UpdateAnnotation applies a partial update. Nil fields keep their stored
// value; updated_at is always refreshed and never moves backwards.
// Returns false if no annotation has input.ID.
func (s *Store) UpdateAnnotation(ctx context.Context, input UpdateAnnotationInput) (bool, error) {
	const op = "update annotation"

	db, err := s.db(op)
	if err != nil {
		return false, err
	}

	position, err := encodePosition(input.Position)
	if err != nil {
		return false, rrerr.New(rrerr.KindValidation, op, input.ID, err)
	}

	res, err := db.ExecContext(ctx, `
		UPDATE annotations SET
			color = COALESCE(?, color),
			content = COALESCE(?, content),
			position_data = COALESCE(?, position_data),
			updated_at = MAX(?, updated_at)
		WHERE id = ?`,
		nullString(input.Color),
		nullString(input.Content),
		position,
		formatTime(s.now()),
		input.ID,
	)
	if err != nil {
		return false, rrerr.New(rrerr.KindStore, op, input.ID, fmt.Errorf("update: %w", err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, rrerr.New(rrerr.KindStore, op, input.ID, fmt.Errorf("rows affected: %w", err))
	}

	return n > 0, nil
}

// DeleteAnnotation removes the annotation with id. Returns false if it did not exist.
func (s *Store) DeleteAnnotation(ctx context.Context, id string) (bool, error) {
	const op = "delete annotation"

	db, err := s.db(op)
	if err != nil {
		return false, err
	}

	res, err := db.ExecContext(ctx, "DELETE FROM annotations WHERE id = ?", id)
	if err != nil {
		return false, rrerr.New(rrerr.KindStore, op, id, fmt.Errorf("delete: %w", err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, rrerr.New(rrerr.KindStore, op, id, fmt.Errorf("rows affected: %w", err))
	}

	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanAnnotation decodes one row. Undecodable columns are
// rrerr.KindInvalidRecordEncoding; sql.ErrNoRows passes through unwrapped.
func scanAnnotation(row rowScanner) (Annotation, error) {
	var (
		a         Annotation
		typ       string
		color     sql.NullString
		content   sql.NullString
		position  sql.NullString
		createdAt string
		updatedAt string
	)

	err := row.Scan(&a.ID, &typ, &a.PageNumber, &color, &content, &position, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Annotation{}, err
		}

		return Annotation{}, fmt.Errorf("scan: %w", err)
	}

	a.Type, err = ParseAnnotationType(typ)
	if err != nil {
		return Annotation{}, rrerr.New(rrerr.KindInvalidRecordEncoding, "decode annotation", a.ID, err)
	}

	a.Color = nullStringPtr(color)
	a.Content = nullStringPtr(content)

	if position.Valid {
		var pd PositionData

		err = json.Unmarshal([]byte(position.String), &pd)
		if err != nil {
			return Annotation{}, rrerr.New(rrerr.KindInvalidRecordEncoding, "decode annotation", a.ID,
				fmt.Errorf("position_data: %w", err))
		}

		a.Position = &pd
	}

	a.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return Annotation{}, rrerr.New(rrerr.KindInvalidRecordEncoding, "decode annotation", a.ID, err)
	}

	a.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return Annotation{}, rrerr.New(rrerr.KindInvalidRecordEncoding, "decode annotation", a.ID, err)
	}

	return a, nil
}

func encodePosition(pd *PositionData) (sql.NullString, error) {
	if pd == nil {
		return sql.NullString{}, nil
	}

	data, err := json.Marshal(pd)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode position_data: %w", err)
	}

	return sql.NullString{String: string(data), Valid: true}, nil
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}

	v := *s

	return &v
}
