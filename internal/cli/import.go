package cli

import (
	"context"
	"errors"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/rrdoc/internal/session"
)

var errPDFRequired = errors.New("pdf path is required")

// ImportCmd returns the import command.
func ImportCmd(a *app) *Command {
	flags := flag.NewFlagSet("import", flag.ContinueOnError)
	dest := flags.StringP("output", "o", "", "Container path (default: <pdf> with .rr extension)")
	overwrite := flags.Bool("overwrite", false, "Replace an existing container")
	title := flags.StringP("title", "t", "", "Document title")
	pages := flags.Int("pages", 0, "Page count")

	return &Command{
		Flags: flags,
		Usage: "import <pdf> [flags]",
		Short: "Create a container from a PDF",
		Long: "Copy a PDF into a new .rr container with an empty annotation store.\n" +
			"The source PDF is left untouched.",
		Exec: func(ctx context.Context, io *IO, args []string) error {
			md := session.DocumentMetadata{}
			if flags.Changed("title") {
				md.Title = title
			}

			if flags.Changed("pages") {
				md.PageCount = pages
			}

			opts := session.ImportOptions{Dest: a.path(*dest), Overwrite: *overwrite}

			return execImport(ctx, io, a, args, opts, md)
		},
	}
}

func execImport(ctx context.Context, io *IO, a *app, args []string, opts session.ImportOptions, md session.DocumentMetadata) (err error) {
	if len(args) == 0 {
		return errPDFRequired
	}

	if len(args) > 1 {
		return errTooManyArgs
	}

	mgr, err := a.newManager()
	if err != nil {
		return err
	}

	info, err := mgr.Import(ctx, a.path(args[0]), opts)
	if err != nil {
		return err
	}

	defer func() {
		err = errors.Join(err, mgr.Shutdown(context.WithoutCancel(ctx)))
	}()

	if md.Title != nil || md.PageCount != nil {
		err = mgr.SetDocumentMetadata(ctx, md)
		if err != nil {
			return err
		}

		info, err = mgr.Info(ctx)
		if err != nil {
			return err
		}
	}

	return emit(io, a.format, info, func() { printInfo(io, info) })
}
