package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	flag "github.com/spf13/pflag"
)

// Command defines a CLI command with unified help generation.
type Command struct {
	// Flags defines command-specific flags.
	// The FlagSet name is not used - command identity comes from Usage.
	Flags *flag.FlagSet

	// Usage is the freeform usage string shown after "rr" in help.
	// Includes the command name and arguments/flags.
	// Examples: "info <file>", "annotations ls <file> [flags]"
	Usage string

	// Short is a one-line description for the global help listing.
	Short string

	// Long is the full description shown in command help.
	// If empty, Short is used instead.
	Long string

	// Exec runs the command after flags are parsed.
	Exec func(ctx context.Context, o *IO, args []string) error

	// Subcommands turns the command into a group. The first argument
	// selects a subcommand by the second word of its Usage.
	Subcommands []*Command
}

// Name returns the command name (first word of Usage).
func (c *Command) Name() string {
	name, _, _ := strings.Cut(c.Usage, " ")
	return name
}

// verb returns the subcommand name (second word of Usage).
func (c *Command) verb() string {
	fields := strings.Fields(c.Usage)
	if len(fields) < 2 {
		return ""
	}

	return fields[1]
}

// HelpLine returns the short help line for the main usage display.
func (c *Command) HelpLine() string {
	return fmt.Sprintf("  %-34s %s", c.Usage, c.Short)
}

// PrintHelp prints the full help output for "rr <cmd> --help".
func (c *Command) PrintHelp(o *IO) {
	o.Println("Usage: rr", c.Usage)
	o.Println()

	desc := c.Long
	if desc == "" {
		desc = c.Short
	}

	o.Println(desc)

	if len(c.Subcommands) > 0 {
		o.Println()
		o.Println("Commands:")

		for _, sub := range c.Subcommands {
			o.Println(sub.HelpLine())
		}
	}

	if c.Flags != nil && c.Flags.HasFlags() {
		o.Println()
		o.Println("Flags:")

		var buf strings.Builder
		c.Flags.SetOutput(&buf)
		c.Flags.PrintDefaults()
		o.Printf("%s", buf.String())
	}
}

// Run parses flags and executes the command. Returns exit code.
// Handles error printing internally for consistent output ordering.
func (c *Command) Run(ctx context.Context, o *IO, args []string) int {
	if len(c.Subcommands) > 0 {
		return c.runGroup(ctx, o, args)
	}

	c.Flags.SetOutput(&strings.Builder{}) // discard pflag output

	err := c.Flags.Parse(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			c.PrintHelp(o)
			return 0
		}
		o.ErrPrintln("error:", err)
		o.ErrPrintln("Run 'rr", c.Name(), "--help' for usage.")
		return 1
	}

	if err := c.Exec(ctx, o, c.Flags.Args()); err != nil {
		o.ErrPrintln("error:", err)
		return 1
	}

	return 0
}

func (c *Command) runGroup(ctx context.Context, o *IO, args []string) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == helpFlag {
		c.PrintHelp(o)
		return 0
	}

	for _, sub := range c.Subcommands {
		if sub.verb() == args[0] {
			return sub.Run(ctx, o, args[1:])
		}
	}

	o.ErrPrintln("error: unknown command:", c.Name(), args[0])
	o.ErrPrintln("Run 'rr", c.Name(), "--help' for usage.")

	return 1
}
