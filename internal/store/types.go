package store

import (
	"fmt"
	"time"
)

// AnnotationType is the closed set of annotation kinds.
// The zero value is invalid.
type AnnotationType uint8

const (
	AnnotationHighlight AnnotationType = iota + 1
	AnnotationNote
	AnnotationBookmark
)

// String returns the stored tag ("highlight", "note", "bookmark").
func (t AnnotationType) String() string {
	switch t {
	case AnnotationHighlight:
		return "highlight"
	case AnnotationNote:
		return "note"
	case AnnotationBookmark:
		return "bookmark"
	default:
		return fmt.Sprintf("AnnotationType(%d)", uint8(t))
	}
}

// Valid reports whether t is one of the defined types.
func (t AnnotationType) Valid() bool {
	switch t {
	case AnnotationHighlight, AnnotationNote, AnnotationBookmark:
		return true
	default:
		return false
	}
}

// ParseAnnotationType parses a stored tag. Unknown tags are an error, never a default.
func ParseAnnotationType(s string) (AnnotationType, error) {
	switch s {
	case "highlight":
		return AnnotationHighlight, nil
	case "note":
		return AnnotationNote, nil
	case "bookmark":
		return AnnotationBookmark, nil
	default:
		return 0, fmt.Errorf("unknown annotation type %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t AnnotationType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid annotation type %d", uint8(t))
	}

	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *AnnotationType) UnmarshalText(text []byte) error {
	parsed, err := ParseAnnotationType(string(text))
	if err != nil {
		return err
	}

	*t = parsed

	return nil
}

// Annotation is a highlight, note or bookmark attached to a page.
type Annotation struct {
	ID         string         `json:"id"                      yaml:"id"`
	Type       AnnotationType `json:"type"                    yaml:"type"`
	PageNumber int            `json:"page_number"             yaml:"page_number"`
	Color      *string        `json:"color,omitempty"         yaml:"color,omitempty"`
	Content    *string        `json:"content,omitempty"       yaml:"content,omitempty"`
	Position   *PositionData  `json:"position_data,omitempty" yaml:"position_data,omitempty"`
	CreatedAt  time.Time      `json:"created_at"              yaml:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"              yaml:"updated_at"`
}

// PositionData locates an annotation on its page.
// Coordinates are normalized to zoom 1.0 against PageWidth/PageHeight.
// The store treats it as an opaque JSON payload.
type PositionData struct {
	Rects        []Rect  `json:"rects"                   yaml:"rects"`
	PageWidth    float64 `json:"page_width"              yaml:"page_width"`
	PageHeight   float64 `json:"page_height"             yaml:"page_height"`
	SelectedText *string `json:"selected_text,omitempty" yaml:"selected_text,omitempty"`
	StartOffset  *int    `json:"start_offset,omitempty"  yaml:"start_offset,omitempty"`
	EndOffset    *int    `json:"end_offset,omitempty"    yaml:"end_offset,omitempty"`
}

// Rect is an axis-aligned rectangle in page space.
type Rect struct {
	X      float64 `json:"x"      yaml:"x"`
	Y      float64 `json:"y"      yaml:"y"`
	Width  float64 `json:"width"  yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// CreateAnnotationInput holds the caller-supplied fields of a new annotation.
type CreateAnnotationInput struct {
	Type       AnnotationType `json:"type"`
	PageNumber int            `json:"page_number"`
	Color      *string        `json:"color,omitempty"`
	Content    *string        `json:"content,omitempty"`
	Position   *PositionData  `json:"position_data,omitempty"`
}

// UpdateAnnotationInput is a partial update. Nil fields are left unchanged.
type UpdateAnnotationInput struct {
	ID       string        `json:"id"`
	Color    *string       `json:"color,omitempty"`
	Content  *string       `json:"content,omitempty"`
	Position *PositionData `json:"position_data,omitempty"`
}

// MetadataEntry is one key/value row of the metadata table.
type MetadataEntry struct {
	Key   string `json:"key"   yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// Reserved metadata keys.
const (
	MetaTitle     = "title"
	MetaPageCount = "page_count"
	MetaLastPage  = "last_page"
)

// timeLayout is fixed-width so that text ordering in SQLite equals time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime also accepts RFC 3339 with an offset, as written by older
// containers.
func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err == nil {
		return t, nil
	}

	t, err = time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}

	return t.UTC(), nil
}
