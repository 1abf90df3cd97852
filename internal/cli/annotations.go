package cli

import (
	"context"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/rrdoc/internal/session"
	"github.com/calvinalkan/rrdoc/internal/store"
)

var errTypePageRequired = errors.New("--type and --page are required")

// AnnotationsCmd returns the annotations command group.
func AnnotationsCmd(a *app) *Command {
	return &Command{
		Usage: "annotations <command> <file> [args]",
		Short: "List and edit annotations",
		Long:  "List, add, update and remove highlights, notes and bookmarks.",
		Subcommands: []*Command{
			annotationsLsCmd(a),
			annotationsGetCmd(a),
			annotationsAddCmd(a),
			annotationsUpdateCmd(a),
			annotationsRmCmd(a),
		},
	}
}

func annotationsLsCmd(a *app) *Command {
	flags := flag.NewFlagSet("annotations ls", flag.ContinueOnError)
	page := flags.IntP("page", "p", 0, "Only list annotations on this page")

	return &Command{
		Flags: flags,
		Usage: "annotations ls <file> [flags]",
		Short: "List annotations ordered by page",
		Exec: func(ctx context.Context, io *IO, args []string) error {
			var filter *int
			if flags.Changed("page") {
				filter = page
			}

			path, _, err := fileArg(args, 0, 0, nil)
			if err != nil {
				return err
			}

			return a.withDocument(ctx, path, func(mgr *session.Manager) error {
				list, err := mgr.ListAnnotations(ctx, filter)
				if err != nil {
					return err
				}

				if list == nil {
					list = []store.Annotation{}
				}

				return emit(io, a.format, list, func() { printAnnotations(io, list) })
			})
		},
	}
}

func annotationsGetCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("annotations get", flag.ContinueOnError),
		Usage: "annotations get <file> <id>",
		Short: "Show one annotation",
		Exec: func(ctx context.Context, io *IO, args []string) error {
			path, rest, err := fileArg(args, 1, 0, errIDRequired)
			if err != nil {
				return err
			}

			return a.withDocument(ctx, path, func(mgr *session.Manager) error {
				ann, found, err := mgr.GetAnnotation(ctx, rest[0])
				if err != nil {
					return err
				}

				if !found {
					return fmt.Errorf("annotation %s: %w", rest[0], errNotFound)
				}

				return emit(io, a.format, ann, func() { printAnnotation(io, ann) })
			})
		},
	}
}

func annotationsAddCmd(a *app) *Command {
	flags := flag.NewFlagSet("annotations add", flag.ContinueOnError)
	typ := flags.String("type", "", "highlight, note or bookmark (required)")
	page := flags.IntP("page", "p", 0, "Page number (required)")
	color := flags.String("color", "", "Display colour")
	content := flags.StringP("content", "m", "", "Note text")
	position := flags.String("position", "", "Position data as JSON")

	return &Command{
		Flags: flags,
		Usage: "annotations add <file> [flags]",
		Short: "Add an annotation",
		Long: "Add a highlight, note or bookmark to a page.\n" +
			"--position takes a JSON object with rects, page_width and page_height.",
		Exec: func(ctx context.Context, io *IO, args []string) error {
			path, _, err := fileArg(args, 0, 0, nil)
			if err != nil {
				return err
			}

			if !flags.Changed("type") || !flags.Changed("page") {
				return errTypePageRequired
			}

			annType, err := store.ParseAnnotationType(*typ)
			if err != nil {
				return fmt.Errorf("--type: %w", err)
			}

			input := store.CreateAnnotationInput{
				Type:       annType,
				PageNumber: *page,
				Color:      changedString(flags, "color", color),
				Content:    changedString(flags, "content", content),
			}

			input.Position, err = parsePosition(flags, *position)
			if err != nil {
				return err
			}

			return a.withDocument(ctx, path, func(mgr *session.Manager) error {
				ann, err := mgr.CreateAnnotation(ctx, input)
				if err != nil {
					return err
				}

				return emit(io, a.format, ann, func() { io.Println(ann.ID) })
			})
		},
	}
}

func annotationsUpdateCmd(a *app) *Command {
	flags := flag.NewFlagSet("annotations update", flag.ContinueOnError)
	color := flags.String("color", "", "Display colour")
	content := flags.StringP("content", "m", "", "Note text")
	position := flags.String("position", "", "Position data as JSON")

	return &Command{
		Flags: flags,
		Usage: "annotations update <file> <id> [flags]",
		Short: "Change an annotation",
		Long:  "Change the colour, text or position of an annotation. Omitted flags are left unchanged.",
		Exec: func(ctx context.Context, io *IO, args []string) error {
			path, rest, err := fileArg(args, 1, 0, errIDRequired)
			if err != nil {
				return err
			}

			input := store.UpdateAnnotationInput{
				ID:      rest[0],
				Color:   changedString(flags, "color", color),
				Content: changedString(flags, "content", content),
			}

			input.Position, err = parsePosition(flags, *position)
			if err != nil {
				return err
			}

			return a.withDocument(ctx, path, func(mgr *session.Manager) error {
				updated, err := mgr.UpdateAnnotation(ctx, input)
				if err != nil {
					return err
				}

				if !updated {
					return fmt.Errorf("annotation %s: %w", input.ID, errNotFound)
				}

				io.Println("updated", input.ID)

				return nil
			})
		},
	}
}

func annotationsRmCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("annotations rm", flag.ContinueOnError),
		Usage: "annotations rm <file> <id>",
		Short: "Remove an annotation",
		Exec: func(ctx context.Context, io *IO, args []string) error {
			path, rest, err := fileArg(args, 1, 0, errIDRequired)
			if err != nil {
				return err
			}

			return a.withDocument(ctx, path, func(mgr *session.Manager) error {
				deleted, err := mgr.DeleteAnnotation(ctx, rest[0])
				if err != nil {
					return err
				}

				if !deleted {
					return fmt.Errorf("annotation %s: %w", rest[0], errNotFound)
				}

				io.Println("removed", rest[0])

				return nil
			})
		},
	}
}

func changedString(flags *flag.FlagSet, name string, v *string) *string {
	if !flags.Changed(name) {
		return nil
	}

	s := *v

	return &s
}

func parsePosition(flags *flag.FlagSet, raw string) (*store.PositionData, error) {
	if !flags.Changed("position") {
		return nil, nil
	}

	var pos store.PositionData

	err := json.Unmarshal([]byte(raw), &pos)
	if err != nil {
		return nil, fmt.Errorf("--position: %w", err)
	}

	return &pos, nil
}
