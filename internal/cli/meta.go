package cli

import (
	"context"
	"errors"
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/rrdoc/internal/session"
	"github.com/calvinalkan/rrdoc/internal/store"
)

var errValueRequired = errors.New("metadata key and value are required")

// MetaCmd returns the meta command group.
func MetaCmd(a *app) *Command {
	return &Command{
		Usage: "meta <command> <file> [args]",
		Short: "Read and write document metadata",
		Long: "Read and write free-form key/value metadata of a document.\n" +
			"title, page_count and last_page are used by info.",
		Subcommands: []*Command{
			{
				Flags: flag.NewFlagSet("meta get", flag.ContinueOnError),
				Usage: "meta get <file> <key>",
				Short: "Print one value",
				Exec: func(ctx context.Context, io *IO, args []string) error {
					return execMetaGet(ctx, io, a, args)
				},
			},
			{
				Flags: flag.NewFlagSet("meta set", flag.ContinueOnError),
				Usage: "meta set <file> <key> <value>",
				Short: "Set one value",
				Exec: func(ctx context.Context, io *IO, args []string) error {
					return execMetaSet(ctx, a, args)
				},
			},
			{
				Flags: flag.NewFlagSet("meta ls", flag.ContinueOnError),
				Usage: "meta ls <file>",
				Short: "List all values sorted by key",
				Exec: func(ctx context.Context, io *IO, args []string) error {
					return execMetaLs(ctx, io, a, args)
				},
			},
		},
	}
}

func execMetaGet(ctx context.Context, io *IO, a *app, args []string) error {
	path, rest, err := fileArg(args, 1, 0, errKeyRequired)
	if err != nil {
		return err
	}

	key := rest[0]

	return a.withDocument(ctx, path, func(mgr *session.Manager) error {
		value, found, err := mgr.GetMetadata(ctx, key)
		if err != nil {
			return err
		}

		if !found {
			return fmt.Errorf("metadata %q: %w", key, errNotFound)
		}

		entry := store.MetadataEntry{Key: key, Value: value}

		return emit(io, a.format, entry, func() { io.Println(value) })
	})
}

func execMetaSet(ctx context.Context, a *app, args []string) error {
	path, rest, err := fileArg(args, 2, 0, errValueRequired)
	if err != nil {
		return err
	}

	return a.withDocument(ctx, path, func(mgr *session.Manager) error {
		return mgr.SetMetadata(ctx, rest[0], rest[1])
	})
}

func execMetaLs(ctx context.Context, io *IO, a *app, args []string) error {
	path, _, err := fileArg(args, 0, 0, nil)
	if err != nil {
		return err
	}

	return a.withDocument(ctx, path, func(mgr *session.Manager) error {
		entries, err := mgr.ListMetadata(ctx)
		if err != nil {
			return err
		}

		if entries == nil {
			entries = []store.MetadataEntry{}
		}

		return emit(io, a.format, entries, func() { printMetadata(io, entries) })
	})
}
