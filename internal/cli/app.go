// Package cli implements the builder command line: one subcommand per API
// operation plus an interactive chat loop.
package cli

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/sakif/app-builder/internal/client"
)

// ErrUsage means the arguments were wrong; usage has been printed.
var ErrUsage = errors.New("usage error")

type command struct {
	usage string
	run   func(ctx context.Context, a *App, args []string) error
}

var commands = map[string]command{
	"health":    {"health", cmdHealth},
	"register":  {"register -email E -name N", cmdRegister},
	"login":     {"login -email E", cmdLogin},
	"dev-login": {"dev-login [-email E] [-name N]", cmdDevLogin},
	"logout":    {"logout", cmdLogout},
	"whoami":    {"whoami", cmdWhoami},
	"projects":  {"projects", cmdProjects},
	"show":      {"show <project>", cmdShow},
	"generate":  {"generate [-offline] <prompt...>", cmdGenerate},
	"delete":    {"delete <project>", cmdDelete},
	"put":       {"put <project> <path> <local-file>", cmdPut},
	"preview":   {"preview [-editable] [-o file] <project>", cmdPreview},
	"styles":    {"styles <project> <css-file>", cmdStyles},
	"chat":      {"chat", cmdChat},
	"plan":      {"plan <project> <message...>", cmdPlan},
	"build":     {"build <project> <message...>", cmdBuild},
	"snapshots": {"snapshots <project>", cmdSnapshots},
	"snapshot":  {"snapshot <project> [message...]", cmdSnapshot},
	"restore":   {"restore <project> <snapshot>", cmdRestore},
	"compare":   {"compare <project> <from> <to>", cmdCompare},
	"deploy":    {"deploy [-platform P] <project>", cmdDeploy},
	"status":    {"status <deployment>", cmdStatus},
	"export":    {"export <project>", cmdExport},
	"push":      {"push -token T -owner O -repo R [-branch B] [-m msg] <project>", cmdPush},
}

// App runs one command against a client.
type App struct {
	client *client.Client
	in     *bufio.Reader
	out    io.Writer
	errOut io.Writer
}

func New(c *client.Client, in io.Reader, out, errOut io.Writer) *App {
	return &App{client: c, in: bufio.NewReader(in), out: out, errOut: errOut}
}

// Run dispatches args[0] to its command.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" {
		a.Usage()
		if len(args) == 0 {
			return ErrUsage
		}
		return nil
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(a.errOut, "unknown command %q\n", args[0])
		a.Usage()
		return ErrUsage
	}
	err := cmd.run(ctx, a, args[1:])
	if errors.Is(err, ErrUsage) {
		fmt.Fprintf(a.errOut, "usage: builder %s\n", cmd.usage)
	}
	if errors.Is(err, client.ErrUnauthorized) {
		fmt.Fprintln(a.errOut, "run `builder login` to sign in again")
	}
	return err
}

// Usage lists the commands.
func (a *App) Usage() {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(a.errOut, "usage: builder [-backend URL] [-state FILE] <command> [args]")
	fmt.Fprintln(a.errOut, "\ncommands:")
	for _, name := range names {
		fmt.Fprintf(a.errOut, "  %s\n", commands[name].usage)
	}
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

// flags returns a flag set that reports errors to errOut instead of
// exiting.
func (a *App) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	return fs
}

// parse parses args and checks that at least min positional arguments
// remain.
func parse(fs *flag.FlagSet, args []string, min int) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		return nil, ErrUsage
	}
	if fs.NArg() < min {
		return nil, ErrUsage
	}
	return fs.Args(), nil
}

func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}
