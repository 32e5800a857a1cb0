// Command builder is the terminal client of the app builder API.
//
//	builder [-backend URL] [-state FILE] [-v] <command> [args]
//
// The backend defaults to $BUILDER_BACKEND_URL, then http://localhost:8000.
// Against a local backend, or with BUILDER_DEV_AUTH=true, failed calls fall
// back to offline projects and canned chat replies.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/sakif/app-builder/internal/cli"
	"github.com/sakif/app-builder/internal/client"
)

func main() {
	_ = godotenv.Load()

	backend := flag.String("backend", "", "backend URL (default $BUILDER_BACKEND_URL or "+client.DefaultBaseURL+")")
	statePath := flag.String("state", client.DefaultStorePath(), "local state file")
	verbose := flag.Bool("v", false, "log API errors to stderr")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: builder [-backend URL] [-state FILE] [-v] <command> [args]")
		fmt.Fprintln(os.Stderr, "run `builder help` for the command list")
	}
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	c := client.New(*backend, client.OpenStore(*statePath), client.WithLogger(logger))
	app := cli.New(c, os.Stdin, os.Stdout, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := app.Run(ctx, flag.Args())
	stop()

	switch {
	case err == nil:
	case errors.Is(err, cli.ErrUsage):
		os.Exit(2)
	default:
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
