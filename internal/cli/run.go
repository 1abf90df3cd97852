package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/rrdoc/internal/config"
	"github.com/calvinalkan/rrdoc/pkg/fs"
)

const helpFlag = "--help"

// globalFlags are the options accepted before the command name.
type globalFlags struct {
	set *flag.FlagSet

	cwd              string
	configPath       string
	workDir          string
	lockDir          string
	logLevel         string
	compressionLevel int
	format           string
	help             bool
}

func newGlobalFlags() *globalFlags {
	g := &globalFlags{set: flag.NewFlagSet("rr", flag.ContinueOnError)}

	g.set.SetInterspersed(false)
	g.set.SetOutput(io.Discard)
	g.set.StringVarP(&g.cwd, "cwd", "C", "", "Run as if started in `dir`")
	g.set.StringVarP(&g.configPath, "config", "c", "", "Use specified config `file`")
	g.set.StringVar(&g.workDir, "work-dir", "", "Parent `dir` of session working directories")
	g.set.StringVar(&g.lockDir, "lock-dir", "", "`dir` holding container lock files")
	g.set.StringVar(&g.logLevel, "log-level", "", "debug, info, warn or error")
	g.set.IntVar(&g.compressionLevel, "compression-level", 0, "Deflate `level` -1..9, 0 stores entries uncompressed")
	g.set.StringVar(&g.format, "format", string(formatText), "Output format: text, json or yaml")
	g.set.BoolVarP(&g.help, "help", "h", false, "Show help")

	return g
}

func (g *globalFlags) overrides() config.Overrides {
	var o config.Overrides

	if g.set.Changed("work-dir") {
		o.WorkDir = &g.workDir
	}

	if g.set.Changed("lock-dir") {
		o.LockDir = &g.lockDir
	}

	if g.set.Changed("log-level") {
		o.LogLevel = &g.logLevel
	}

	if g.set.Changed("compression-level") {
		o.CompressionLevel = &g.compressionLevel
	}

	return o
}

// Run is the main entry point. Returns exit code.
//
// sigCh may be nil. A signal cancels the running command, which still saves
// the open document before returning.
func Run(in io.Reader, out io.Writer, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	g := newGlobalFlags()

	if len(args) > 0 {
		args = args[1:]
	}

	err := g.set.Parse(args)
	if err != nil {
		fprintln(errOut, "error:", err)
		printUsage(errOut, commands(&app{}))

		return 1
	}

	rest := g.set.Args()
	if g.help || len(rest) == 0 {
		printUsage(out, commands(&app{}))

		return 0
	}

	a, err := newApp(g, env, errOut)
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	cmds := commands(a)

	var cmd *Command

	for _, c := range cmds {
		if c.Name() == rest[0] {
			cmd = c

			break
		}
	}

	if cmd == nil {
		fprintln(errOut, "error: unknown command:", rest[0])
		printUsage(errOut, cmds)

		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if sigCh != nil {
		go func() {
			select {
			case sig := <-sigCh:
				a.log.Debug("interrupted", "signal", sig)
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	return cmd.Run(ctx, NewIO(in, out, errOut), rest[1:])
}

func newApp(g *globalFlags, env map[string]string, errOut io.Writer) (*app, error) {
	f, err := parseFormat(g.format)
	if err != nil {
		return nil, err
	}

	cwd := g.cwd
	if cwd == "" {
		cwd, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	cwd, err = filepath.Abs(cwd)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve working directory: %w", err)
	}

	cfg, err := config.Load(config.LoadInput{
		Cwd:        cwd,
		ConfigPath: g.configPath,
		Overrides:  g.overrides(),
		Env:        env,
	})
	if err != nil {
		return nil, err
	}

	return &app{
		fs:     fs.NewReal(),
		cwd:    cwd,
		cfg:    cfg,
		env:    env,
		log:    newLogger(errOut, cfg.SlogLevel(), env),
		format: f,
	}, nil
}

func commands(a *app) []*Command {
	return []*Command{
		ImportCmd(a),
		InfoCmd(a),
		PDFCmd(a),
		AnnotationsCmd(a),
		MetaCmd(a),
		ShellCmd(a),
		PrintConfigCmd(a),
	}
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

func printUsage(w io.Writer, cmds []*Command) {
	fprintln(w, `rr - annotated PDF containers

Usage: rr [options] <command> [args]

Options:
  -C, --cwd <dir>              Run as if started in <dir>
  -c, --config <file>          Use specified config file
      --work-dir <dir>         Parent of session working directories
      --lock-dir <dir>         Directory holding container lock files
      --log-level <level>      debug, info, warn or error
      --compression-level <n>  Deflate level -1..9, 0 stores entries uncompressed
      --format <fmt>           Output format: text, json or yaml`)

	if len(cmds) == 0 {
		return
	}

	fprintln(w)
	fprintln(w, "Commands:")

	var b strings.Builder
	for _, c := range cmds {
		b.WriteString(c.HelpLine())
		b.WriteByte('\n')
	}

	_, _ = io.WriteString(w, b.String())
}
