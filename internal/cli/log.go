package cli

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// newLogger returns a tint handler on w. Colour is used only when w is a
// terminal and NO_COLOR is unset.
func newLogger(w io.Writer, level slog.Level, env map[string]string) *slog.Logger {
	noColor := true

	if f, ok := w.(*os.File); ok && env["NO_COLOR"] == "" {
		if isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()) {
			w = colorable.NewColorable(f)
			noColor = false
		}
	}

	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
		NoColor:    noColor,
	}))
}
