package cli

import (
	"context"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/rrdoc/internal/session"
)

// InfoCmd returns the info command.
func InfoCmd(a *app) *Command {
	flags := flag.NewFlagSet("info", flag.ContinueOnError)
	title := flags.StringP("title", "t", "", "Set the document title")
	pages := flags.Int("pages", 0, "Set the page count")
	lastPage := flags.Int("last-page", 0, "Set the last viewed page")

	return &Command{
		Flags: flags,
		Usage: "info <file> [flags]",
		Short: "Show or set document details",
		Long: "Show the title, page count and last viewed page of a document.\n" +
			"A .pdf argument is imported into a container next to it first.",
		Exec: func(ctx context.Context, io *IO, args []string) error {
			var md session.DocumentMetadata
			if flags.Changed("title") {
				md.Title = title
			}

			if flags.Changed("pages") {
				md.PageCount = pages
			}

			if flags.Changed("last-page") {
				md.LastPage = lastPage
			}

			return execInfo(ctx, io, a, args, md)
		},
	}
}

func execInfo(ctx context.Context, io *IO, a *app, args []string, md session.DocumentMetadata) error {
	path, _, err := fileArg(args, 0, 0, nil)
	if err != nil {
		return err
	}

	return a.withDocument(ctx, path, func(mgr *session.Manager) error {
		if md.Title != nil || md.PageCount != nil || md.LastPage != nil {
			err := mgr.SetDocumentMetadata(ctx, md)
			if err != nil {
				return err
			}
		}

		info, err := mgr.Info(ctx)
		if err != nil {
			return err
		}

		return emit(io, a.format, info, func() { printInfo(io, info) })
	})
}
