package cli

import (
	"context"
	"strconv"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/rrdoc/internal/config"
)

// PrintConfigCmd returns the print-config command.
func PrintConfigCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("print-config", flag.ContinueOnError),
		Usage: "print-config",
		Short: "Show resolved configuration",
		Long:  "Display the effective configuration and which files it was loaded from.",
		Exec: func(_ context.Context, io *IO, _ []string) error {
			return execPrintConfig(io, a)
		},
	}
}

type configView struct {
	EffectiveCwd     string         `json:"effective_cwd"     yaml:"effective_cwd"`
	WorkDir          string         `json:"work_dir"          yaml:"work_dir"`
	LockDir          string         `json:"lock_dir"          yaml:"lock_dir"`
	LogLevel         string         `json:"log_level"         yaml:"log_level"`
	CompressionLevel int            `json:"compression_level" yaml:"compression_level"`
	Sources          config.Sources `json:"sources"           yaml:"sources"`
}

func execPrintConfig(io *IO, a *app) error {
	cfg := a.cfg
	view := configView{
		EffectiveCwd:     a.cwd,
		WorkDir:          cfg.WorkDir,
		LockDir:          cfg.LockDir,
		LogLevel:         strings.ToLower(cfg.SlogLevel().String()),
		CompressionLevel: cfg.Compression(),
		Sources:          cfg.Sources,
	}

	return emit(io, a.format, view, func() {
		io.Println("effective_cwd=" + view.EffectiveCwd)
		io.Println("work_dir=" + view.WorkDir)
		io.Println("lock_dir=" + view.LockDir)
		io.Println("log_level=" + view.LogLevel)
		io.Println("compression_level=" + strconv.Itoa(view.CompressionLevel))

		io.Println("")
		io.Println("# Sources:")

		if cfg.Sources.Global != "" {
			io.Println("#   global:", cfg.Sources.Global)
		}

		if cfg.Sources.Project != "" {
			io.Println("#   project:", cfg.Sources.Project)
		}

		if cfg.Sources.Global == "" && cfg.Sources.Project == "" {
			io.Println("#   (using defaults only)")
		}
	})
}
