package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/calvinalkan/rrdoc/internal/session"
	"github.com/calvinalkan/rrdoc/internal/store"
)

// format selects how commands render their results.
type format string

const (
	formatText format = "text"
	formatJSON format = "json"
	formatYAML format = "yaml"
)

var errFormat = errors.New("format must be text, json or yaml")

func parseFormat(s string) (format, error) {
	switch f := format(strings.ToLower(s)); f {
	case formatText, formatJSON, formatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("%w, got %q", errFormat, s)
	}
}

// emit writes v as JSON or YAML, or calls text for the text format.
func emit(o *IO, f format, v any, text func()) error {
	switch f {
	case formatJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("encode json: %w", err)
		}

		o.Printf("%s\n", data)

		return nil
	case formatYAML:
		enc := yaml.NewEncoder(o)
		enc.SetIndent(2)

		err := enc.Encode(v)
		if err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}

		return enc.Close()
	default:
		text()

		return nil
	}
}

func printInfo(o *IO, info session.DocumentInfo) {
	o.Println("rr_path=" + info.ArchivePath)
	o.Println("title=" + info.Title)

	if info.PageCount != nil {
		o.Println("page_count=" + strconv.Itoa(*info.PageCount))
	}

	if info.LastPage != nil {
		o.Println("last_page=" + strconv.Itoa(*info.LastPage))
	}
}

func printAnnotation(o *IO, a store.Annotation) {
	line := fmt.Sprintf("%s  page=%d  %s", a.ID, a.PageNumber, a.Type)

	if a.Color != nil {
		line += "  color=" + *a.Color
	}

	if a.Content != nil {
		line += "  " + strconv.Quote(*a.Content)
	}

	o.Println(line)
}

func printAnnotations(o *IO, list []store.Annotation) {
	if len(list) == 0 {
		o.Println("(no annotations)")

		return
	}

	for _, a := range list {
		printAnnotation(o, a)
	}
}

func printMetadata(o *IO, entries []store.MetadataEntry) {
	for _, e := range entries {
		o.Println(e.Key + "=" + e.Value)
	}
}
