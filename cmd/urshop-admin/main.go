package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/erauner12/urshop-admin/internal/admin"
	"github.com/erauner12/urshop-admin/internal/client"
	"github.com/erauner12/urshop-admin/internal/config"
	"github.com/erauner12/urshop-admin/internal/logging"
	"github.com/erauner12/urshop-admin/internal/secretstore"
	"github.com/erauner12/urshop-admin/internal/session"
	"github.com/rs/zerolog/log"
)

const appName = "urshop-admin"

var version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one command and returns the process exit code. Everything
// opened here is released before it returns.
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		usage(stderr)
		return 2
	}
	switch args[0] {
	case "-version", "--version", "version":
		printBanner(stdout)
		return 0
	case "-h", "--help", "help":
		usage(stdout)
		return 0
	}

	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n", args[0])
		usage(stderr)
		return 2
	}

	cfg, err := config.Load()
	logging.Setup(appName, cfg.LogLevel, cfg.IsDev())
	if err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := secretstore.Open(ctx, cfg.Secrets)
	if err != nil {
		log.Error().Err(err).Str("backend", string(cfg.Secrets.Backend)).Msg("failed to open secret store")
		return 1
	}
	defer store.Close()

	app := admin.FromConfig(cfg, store)
	app.Start(ctx)

	unsubscribe := app.OnStatusChange(func(s session.Status) {
		log.Debug().Str("status", s.String()).Msg("session status changed")
	})
	defer unsubscribe()

	err = cmd.run(ctx, app, args[1:], stdout)
	if n := app.Sweep(); n > 0 {
		log.Debug().Int("entries", n).Msg("evicted unused query results")
	}

	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, client.ErrUnauthorized) && cmd.name != "login":
		fmt.Fprintln(stderr, "session expired, run `urshop-admin login` again")
		return 1
	default:
		fmt.Fprintf(stderr, "%s: %v\n", cmd.name, err)
		return 1
	}
}

func printBanner(w io.Writer) {
	figure.Write(w, figure.NewFigure(appName, "cybermedium", true))
	fmt.Fprintf(w, "\nversion %s\n", version)
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "usage: %s <command> [flags]\n\ncommands:\n", appName)
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-14s %s\n", name, commands[name].summary)
	}
	fmt.Fprintf(w, "\nRun `%s <command> -h` for the command's flags.\n", appName)
}
