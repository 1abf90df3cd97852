package cli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/rrdoc/internal/session"
	"github.com/calvinalkan/rrdoc/internal/store"
	"github.com/calvinalkan/rrdoc/pkg/fs"
)

// ShellCmd returns the shell command.
func ShellCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("shell", flag.ContinueOnError),
		Usage: "shell [file]",
		Short: "Interactive session",
		Long: "Keep one document open across commands. Opening another document\n" +
			"saves the current one first. The open document is saved on exit.",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) > 1 {
				return errTooManyArgs
			}

			return execShell(ctx, o, a, args)
		},
	}
}

// lineReader is the input side of the shell: liner on a terminal, a
// line scanner otherwise.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
}

type scanReader struct {
	scanner *bufio.Scanner
}

func (s *scanReader) Prompt(string) (string, error) {
	if !s.scanner.Scan() {
		err := s.scanner.Err()
		if err == nil {
			err = io.EOF
		}

		return "", err
	}

	return s.scanner.Text(), nil
}

func (*scanReader) AppendHistory(string) {}

// shell is the interactive command loop.
type shell struct {
	app *app
	mgr *session.Manager
	o   *IO
}

var shellCommands = []string{
	"open", "import", "info", "save", "close",
	"ls", "show", "add", "edit", "color", "rm",
	"get", "set", "meta", "title", "page", "pdf",
	"help", "exit", "quit", "q",
}

func execShell(ctx context.Context, o *IO, a *app, args []string) (err error) {
	mgr, err := a.newManager()
	if err != nil {
		return err
	}

	defer func() {
		err = errors.Join(err, mgr.Shutdown(context.WithoutCancel(ctx)))
	}()

	sh := &shell{app: a, mgr: mgr, o: o}

	if len(args) == 1 {
		err = sh.open(ctx, args[0])
		if err != nil {
			return err
		}
	}

	var reader lineReader

	if f, ok := o.in.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		state := liner.NewLiner()
		defer state.Close()

		state.SetCtrlCAborts(true)
		state.SetCompleter(completeShell)

		historyPath := a.historyFile()
		loadHistory(a.fs, historyPath, state)

		defer func() {
			err := saveHistory(a.fs, historyPath, state)
			if err != nil {
				a.log.Debug("shell history not saved", "path", historyPath, "error", err)
			}
		}()

		o.Println("rr shell. Type 'help' for commands.")

		reader = state
	} else {
		in := o.in
		if in == nil {
			in = strings.NewReader("")
		}

		reader = &scanReader{scanner: bufio.NewScanner(in)}
	}

	return sh.loop(ctx, reader)
}

func (sh *shell) loop(ctx context.Context, reader lineReader) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := reader.Prompt(sh.prompt())
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		reader.AppendHistory(line)

		fields := strings.Fields(line)
		cmd, args := strings.ToLower(fields[0]), fields[1:]

		if cmd == "exit" || cmd == "quit" || cmd == "q" {
			return nil
		}

		err = sh.dispatch(ctx, cmd, args)
		if err != nil {
			sh.o.ErrPrintln("error:", err)
		}
	}
}

func (sh *shell) prompt() string {
	info, err := sh.mgr.Info(context.Background())
	if err != nil {
		return "rr> "
	}

	return "rr:" + filepath.Base(info.ArchivePath) + "> "
}

func (sh *shell) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help", "?":
		sh.printHelp()

		return nil
	case "open":
		if len(args) != 1 {
			return errFileRequired
		}

		return sh.open(ctx, args[0])
	case "import":
		return sh.importPDF(ctx, args)
	case "info":
		info, err := sh.mgr.Info(ctx)
		if err != nil {
			return err
		}

		printInfo(sh.o, info)

		return nil
	case "save":
		return sh.mgr.Save(ctx)
	case "close":
		return sh.mgr.Close(ctx)
	case "ls":
		return sh.list(ctx, args)
	case "show":
		return sh.show(ctx, args)
	case "add":
		return sh.add(ctx, args)
	case "edit":
		return sh.update(ctx, args, func(in *store.UpdateAnnotationInput, text string) { in.Content = &text })
	case "color":
		return sh.update(ctx, args, func(in *store.UpdateAnnotationInput, text string) { in.Color = &text })
	case "rm":
		return sh.remove(ctx, args)
	case "get":
		return sh.getMeta(ctx, args)
	case "set":
		if len(args) < 2 {
			return errValueRequired
		}

		return sh.mgr.SetMetadata(ctx, args[0], strings.Join(args[1:], " "))
	case "meta":
		entries, err := sh.mgr.ListMetadata(ctx)
		if err != nil {
			return err
		}

		printMetadata(sh.o, entries)

		return nil
	case "title":
		title := strings.Join(args, " ")

		return sh.mgr.SetDocumentMetadata(ctx, session.DocumentMetadata{Title: &title})
	case "page":
		if len(args) != 1 {
			return errPageRequired
		}

		page, err := parsePage(args[0])
		if err != nil {
			return err
		}

		return sh.mgr.SetDocumentMetadata(ctx, session.DocumentMetadata{LastPage: &page})
	case "pdf":
		return sh.exportPDF(ctx, args)
	default:
		return fmt.Errorf("unknown command: %s (type 'help' for commands)", cmd)
	}
}

var (
	errPageRequired = errors.New("page is required")
	errAddUsage     = errors.New("usage: add <type> <page> [text]")
)

func (sh *shell) open(ctx context.Context, path string) error {
	info, err := sh.mgr.Open(ctx, sh.app.path(path))
	if err != nil {
		return err
	}

	sh.o.Println("opened", info.ArchivePath)

	return nil
}

func (sh *shell) importPDF(ctx context.Context, args []string) error {
	if len(args) == 0 || len(args) > 2 {
		return errPDFRequired
	}

	var opts session.ImportOptions
	if len(args) == 2 {
		opts.Dest = sh.app.path(args[1])
	}

	info, err := sh.mgr.Import(ctx, sh.app.path(args[0]), opts)
	if err != nil {
		return err
	}

	sh.o.Println("imported", info.ArchivePath)

	return nil
}

func (sh *shell) list(ctx context.Context, args []string) error {
	var filter *int

	if len(args) > 0 {
		page, err := parsePage(args[0])
		if err != nil {
			return err
		}

		filter = &page
	}

	list, err := sh.mgr.ListAnnotations(ctx, filter)
	if err != nil {
		return err
	}

	printAnnotations(sh.o, list)

	return nil
}

func (sh *shell) show(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errIDRequired
	}

	ann, found, err := sh.mgr.GetAnnotation(ctx, args[0])
	if err != nil {
		return err
	}

	if !found {
		return fmt.Errorf("annotation %s: %w", args[0], errNotFound)
	}

	printAnnotation(sh.o, ann)

	return nil
}

// add <type> <page> [content...]
func (sh *shell) add(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errAddUsage
	}

	annType, err := store.ParseAnnotationType(args[0])
	if err != nil {
		return err
	}

	page, err := parsePage(args[1])
	if err != nil {
		return err
	}

	input := store.CreateAnnotationInput{Type: annType, PageNumber: page}

	if len(args) > 2 {
		content := strings.Join(args[2:], " ")
		input.Content = &content
	}

	ann, err := sh.mgr.CreateAnnotation(ctx, input)
	if err != nil {
		return err
	}

	sh.o.Println(ann.ID)

	return nil
}

func (sh *shell) update(ctx context.Context, args []string, set func(*store.UpdateAnnotationInput, string)) error {
	if len(args) < 2 {
		return errIDRequired
	}

	input := store.UpdateAnnotationInput{ID: args[0]}
	set(&input, strings.Join(args[1:], " "))

	updated, err := sh.mgr.UpdateAnnotation(ctx, input)
	if err != nil {
		return err
	}

	if !updated {
		return fmt.Errorf("annotation %s: %w", args[0], errNotFound)
	}

	return nil
}

func (sh *shell) remove(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errIDRequired
	}

	deleted, err := sh.mgr.DeleteAnnotation(ctx, args[0])
	if err != nil {
		return err
	}

	if !deleted {
		return fmt.Errorf("annotation %s: %w", args[0], errNotFound)
	}

	return nil
}

func (sh *shell) getMeta(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errKeyRequired
	}

	value, found, err := sh.mgr.GetMetadata(ctx, args[0])
	if err != nil {
		return err
	}

	if !found {
		return fmt.Errorf("metadata %q: %w", args[0], errNotFound)
	}

	sh.o.Println(value)

	return nil
}

func (sh *shell) exportPDF(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("output path is required")
	}

	var buf bytes.Buffer

	_, err := sh.mgr.ReadDocument(ctx, &buf)
	if err != nil {
		return err
	}

	output := sh.app.path(args[0])

	err = writeFileAtomic(output, &buf)
	if err != nil {
		return err
	}

	sh.o.Println(output)

	return nil
}

func (sh *shell) printHelp() {
	o := sh.o
	o.Println("Commands:")
	o.Println("  open <file>                   Open a .rr container or import a .pdf")
	o.Println("  import <pdf> [dest]           Create a container from a PDF and open it")
	o.Println("  info                          Show document details")
	o.Println("  save                          Write the document back to its container")
	o.Println("  close                         Save and close the document")
	o.Println("  ls [page]                     List annotations")
	o.Println("  show <id>                     Show one annotation")
	o.Println("  add <type> <page> [text]      Add a highlight, note or bookmark")
	o.Println("  edit <id> <text>              Change annotation text")
	o.Println("  color <id> <color>            Change annotation colour")
	o.Println("  rm <id>                       Remove an annotation")
	o.Println("  get <key>                     Print a metadata value")
	o.Println("  set <key> <value>             Set a metadata value")
	o.Println("  meta                          List metadata")
	o.Println("  title <text>                  Set the document title")
	o.Println("  page <n>                      Remember the last viewed page")
	o.Println("  pdf <out>                     Export the embedded PDF")
	o.Println("  help                          Show this help")
	o.Println("  exit / quit / q               Save and exit")
}

// completeShell provides tab completion for commands.
func completeShell(line string) []string {
	var completions []string

	lower := strings.ToLower(line)
	for _, cmd := range shellCommands {
		if strings.HasPrefix(cmd, lower) {
			completions = append(completions, cmd)
		}
	}

	return completions
}

// parsePage parses a page argument.
func parsePage(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid page %q", s)
	}

	return n, nil
}

// history is the part of [liner.State] that persists entered lines.
type history interface {
	ReadHistory(r io.Reader) (int, error)
	WriteHistory(w io.Writer) (int, error)
}

// loadHistory reads previous lines into h. A missing file is not an error.
func loadHistory(fsys fs.FS, path string, h history) {
	f, err := fsys.Open(path)
	if err != nil {
		return
	}

	defer func() { _ = f.Close() }()

	_, _ = h.ReadHistory(f)
}

// saveHistory replaces the history file with the lines in h.
func saveHistory(fsys fs.FS, path string, h history) error {
	err := fsys.MkdirAll(filepath.Dir(path), 0o750)
	if err != nil {
		return err
	}

	w := fs.NewAtomicWriter(fsys)

	return w.WriteFunc(path, func(dst io.Writer) error {
		_, err := h.WriteHistory(dst)

		return err
	}, fs.AtomicWriteOptions{Perm: 0o600})
}

// historyFile returns the shell history path: $XDG_STATE_HOME/rr/history,
// ~/.local/state/rr/history, or a file under the work dir.
func (a *app) historyFile() string {
	if state := a.env["XDG_STATE_HOME"]; state != "" {
		return filepath.Join(state, "rr", "history")
	}

	if home := a.env["HOME"]; home != "" {
		return filepath.Join(home, ".local", "state", "rr", "history")
	}

	return filepath.Join(a.cfg.WorkDir, "history")
}
