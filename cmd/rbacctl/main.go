package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/odyssey-erp/odyssey-rbac/cmd/rbacctl/cli"
	"github.com/odyssey-erp/odyssey-rbac/internal/app"
	"github.com/odyssey-erp/odyssey-rbac/internal/rbac"
)

const usage = `usage: rbacctl <command> [flags]

commands:
  show   print a role's grants for every module
  reset  restore a role's catalog defaults
  paths  print the paths a role may navigate to
`

func main() {
	if app.InTestMode() {
		return
	}
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}
	name := args[0]
	switch name {
	case "show", "reset", "paths":
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", name, usage)
		return 2
	}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	role := fs.String("role", "", "role to operate on (admin, manager, user); defaults to the active role")
	jsonOut := fs.Bool("json", false, "emit JSON")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}
	logger := app.NewLogger(cfg)

	catalog, err := app.LoadCatalog(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "load catalog: %v\n", err)
		return 1
	}
	backend, err := app.OpenBackend(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "open store: %v\n", err)
		return 1
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Warn("backend close", slog.Any("error", err))
		}
	}()

	store := rbac.NewStore(ctx, backend.KV, catalog, app.StoreOptions(cfg, rbac.WithLogger(logger))...)
	ops, err := cli.NewRBACOpsCLI(store)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}

	opts := cli.Options{Role: *role, JSONOutput: *jsonOut, Stdout: stdout, Stderr: stderr}
	switch name {
	case "show":
		return ops.ShowCommand(ctx, opts)
	case "reset":
		return ops.ResetCommand(ctx, opts)
	default:
		return ops.PathsCommand(ctx, opts)
	}
}
