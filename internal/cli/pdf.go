package cli

import (
	"bytes"
	"context"
	"fmt"
	goio "io"

	"github.com/natefinch/atomic"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/rrdoc/internal/session"
)

// PDFCmd returns the pdf command.
func PDFCmd(a *app) *Command {
	flags := flag.NewFlagSet("pdf", flag.ContinueOnError)
	output := flags.StringP("output", "o", "", "Write the PDF to this file instead of stdout")

	return &Command{
		Flags: flags,
		Usage: "pdf <file> [flags]",
		Short: "Export the embedded PDF",
		Long:  "Write the document bytes stored in a container to stdout or a file.",
		Exec: func(ctx context.Context, io *IO, args []string) error {
			return execPDF(ctx, io, a, args, a.path(*output))
		},
	}
}

func execPDF(ctx context.Context, io *IO, a *app, args []string, output string) error {
	path, _, err := fileArg(args, 0, 0, nil)
	if err != nil {
		return err
	}

	var buf bytes.Buffer

	err = a.withDocument(ctx, path, func(mgr *session.Manager) error {
		_, err := mgr.ReadDocument(ctx, &buf)

		return err
	})
	if err != nil {
		return err
	}

	if output == "" {
		_, err = io.Write(buf.Bytes())

		return err
	}

	err = writeFileAtomic(output, &buf)
	if err != nil {
		return err
	}

	io.Println(output)

	return nil
}

// writeFileAtomic replaces path with the contents of r.
func writeFileAtomic(path string, r goio.Reader) error {
	err := atomic.WriteFile(path, r)
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	return nil
}
