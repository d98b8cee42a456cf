// Command palette runs the palette delivery order service.
//
// Usage:
//
//	palette serve [-addr :8080] [-db path]
//	palette mcp [-db path]
//	palette generate-slots [-start YYYY-MM-DD] [-days 30] [-db path]
//	palette issue-key -name NAME [-role collaborator|admin] [-db path]
//	palette add-palette-type -name NAME [-price 12.50] [-description TEXT] [-db path]
//	palette --version
//
// Settings not given as flags come from PALETTE_* environment variables.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/hfarhat1982/gestion-tournee/internal/auth"
	"github.com/hfarhat1982/gestion-tournee/internal/config"
	"github.com/hfarhat1982/gestion-tournee/internal/httpapi"
	"github.com/hfarhat1982/gestion-tournee/internal/logging"
	"github.com/hfarhat1982/gestion-tournee/internal/mcp"
	"github.com/hfarhat1982/gestion-tournee/internal/orders"
	"github.com/hfarhat1982/gestion-tournee/internal/slots"
	"github.com/hfarhat1982/gestion-tournee/internal/storage"
	"github.com/hfarhat1982/gestion-tournee/pkg/types"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

const usage = `usage: palette <command> [flags]

commands:
  serve             run the HTTP API
  mcp               run the MCP server on stdio
  generate-slots    create delivery slots for a range of days
  issue-key         create an API key and print its token
  add-palette-type  add or update a palette type
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	cmd, rest := args[0], args[1:]
	if cmd == "--version" || cmd == "version" {
		printVersion(stdout)
		return 0
	}

	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(stderr, "configuration: %v\n", err)
		return 1
	}

	switch cmd {
	case "serve":
		err = serve(cfg, rest, stdout)
	case "mcp":
		// stdout is the protocol channel
		err = serveMCP(cfg, rest, stderr)
	case "generate-slots":
		err = generateSlots(cfg, rest, stdout, stderr)
	case "issue-key":
		err = issueKey(cfg, rest, stdout, stderr)
	case "add-palette-type":
		err = addPaletteType(cfg, rest, stdout, stderr)
	case "-h", "--help", "help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
		return 2
	}

	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "palette %s: %v\n", cmd, err)
		return 1
	}
	return 0
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "Palette Order Service\n")
	fmt.Fprintf(w, "Version: %s\n", version)
	fmt.Fprintf(w, "Build Time: %s\n", buildTime)
	fmt.Fprintf(w, "Build Mode: %s\n", storage.BuildMode)
	fmt.Fprintf(w, "SQLite Driver: %s\n", storage.DriverName)
}

// app holds the collaborators shared by every command
type app struct {
	cfg       config.Config
	logger    *logging.Logger
	store     *storage.SQLiteStorage
	orders    *orders.Service
	generator *slots.Generator
	verifier  *auth.Verifier
}

func newApp(ctx context.Context, cfg config.Config, logOut io.Writer) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := logging.New(logging.Config{
		Level:     cfg.LogLevel,
		Format:    cfg.LogFormat,
		Output:    logOut,
		Component: "palette",
	})

	dbPath, err := config.ResolveDBPath(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		store:  store,
		orders: orders.NewService(store, orders.Config{
			Policy: cfg.SlotPolicy,
			Logger: logger,
		}),
		generator: slots.NewGenerator(store,
			slots.WithCapacity(cfg.SlotCapacity),
			slots.WithLogger(logger)),
		verifier: auth.NewVerifier(store, auth.DefaultCacheSize, auth.DefaultCacheTTL),
	}

	if cfg.AdminToken != "" {
		if _, err := a.verifier.Ensure(ctx, "bootstrap admin", cfg.AdminToken, types.RoleAdmin); err != nil {
			_ = store.Close()
			return nil, err
		}
	}

	logger.Info("storage ready",
		"db_path", dbPath,
		"build_mode", storage.BuildMode,
		"driver", storage.DriverName,
		"slot_policy", string(cfg.SlotPolicy),
		"slot_capacity", cfg.SlotCapacity)
	return a, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error("failed to close storage", "error", err)
	}
}

func newFlagSet(name string, output io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("palette "+name, flag.ContinueOnError)
	fs.SetOutput(output)
	return fs
}

func serve(cfg config.Config, args []string, logOut io.Writer) error {
	fs := newFlagSet("serve", logOut)
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "database file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logOut)
	if err != nil {
		return err
	}
	defer a.close()

	api := httpapi.New(a.store, a.orders, a.generator, a.verifier, a.logger)
	srv := api.NewHTTPServer(cfg.Addr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("http server listening", "addr", cfg.Addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down http server", "timeout", cfg.ShutdownTimeout.String())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	a.logger.Info("server stopped")
	return nil
}

func serveMCP(cfg config.Config, args []string, logOut io.Writer) error {
	fs := newFlagSet("mcp", logOut)
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "database file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logOut)
	if err != nil {
		return err
	}
	defer a.close()

	server := mcp.NewServer(a.store, a.orders, a.generator, a.logger)

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Serve(ctx)
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("received shutdown signal")
		return nil
	case err := <-errChan:
		return err
	}
}

func generateSlots(cfg config.Config, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("generate-slots", stderr)
	start := fs.String("start", "", "first day (YYYY-MM-DD), defaults to today")
	days := fs.Int("days", slots.DefaultDaysAhead, "number of days to generate")
	fs.IntVar(&cfg.SlotCapacity, "capacity", cfg.SlotCapacity, "capacity of each new slot")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "database file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg, stderr)
	if err != nil {
		return err
	}
	defer a.close()

	window, err := a.generator.Resolve(*start, *days)
	if err != nil {
		return err
	}
	created, err := a.generator.Generate(ctx, window.StartDate, window.DaysAhead)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "created %d slots from %s over %d days\n", created, window.StartDate, window.DaysAhead)
	return nil
}

func issueKey(cfg config.Config, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("issue-key", stderr)
	name := fs.String("name", "", "key owner (required)")
	role := fs.String("role", string(types.RoleCollaborator), "collaborator or admin")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "database file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		return errors.New("-name is required")
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg, stderr)
	if err != nil {
		return err
	}
	defer a.close()

	key, err := a.verifier.Issue(ctx, *name, types.Role(*role))
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, key.Key)
	return nil
}

func addPaletteType(cfg config.Config, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("add-palette-type", stderr)
	id := fs.String("id", "", "existing palette type to update")
	name := fs.String("name", "", "palette type name (required)")
	description := fs.String("description", "", "free text description")
	price := fs.String("price", "", "unit price, empty for none")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "database file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	pt, err := parsePaletteType(*id, *name, *description, *price)
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg, stderr)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.store.UpsertPaletteType(ctx, pt); err != nil {
		return err
	}

	fmt.Fprintln(stdout, pt.ID)
	return nil
}
