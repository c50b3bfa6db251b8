package hrsuitecli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/phillip-england/hrsuite/internal/clientapp"
	"github.com/phillip-england/hrsuite/internal/config"
	"github.com/phillip-england/hrsuite/internal/devapi"
	"github.com/phillip-england/hrsuite/internal/envutil"
	"github.com/phillip-england/hrsuite/internal/logging"
	"github.com/phillip-england/hrsuite/internal/storage"
)

var ErrUsage = errors.New("usage")

func Execute(args []string) error {
	if len(args) < 1 {
		return usageError()
	}

	switch args[0] {
	case "setup":
		return runSetup(args[1:])
	case "run":
		return runCommand(args[1:])
	case "storage":
		return runStorage(args[1:])
	default:
		return usageError()
	}
}

func usageError() error {
	return fmt.Errorf("%w: hrsuite <setup|run|storage> [...]", ErrUsage)
}

func PrintUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: hrsuite setup [--env-file .env] [--api-base-url URL] [--admin-email EMAIL --admin-password PASSWORD] [--force]")
	fmt.Fprintln(w, "       hrsuite run client|api|all")
	fmt.Fprintln(w, "       hrsuite storage prune [--older-than 720h]")
}

func runSetup(args []string) error {
	fs := flag.NewFlagSet("setup", flag.ContinueOnError)
	envPath := fs.String("env-file", ".env", "path to .env file")
	apiBaseURL := fs.String("api-base-url", config.Defaults["API_BASE_URL"], "HR API base URL")
	addr := fs.String("addr", config.Defaults["CLIENT_ADDR"], "web client listen address")
	adminEmail := fs.String("admin-email", "", "admin seeded into the development API")
	adminPass := fs.String("admin-password", "", "password for --admin-email")
	force := fs.Bool("force", false, "overwrite existing env file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	values := make(map[string]string, len(config.Defaults)+3)
	for key, value := range config.Defaults {
		values[key] = value
	}
	values["API_BASE_URL"] = strings.TrimRight(*apiBaseURL, "/")
	values["CLIENT_ADDR"] = *addr

	if *adminEmail != "" || *adminPass != "" {
		seed := devapi.Account{Name: "Administrator", Email: *adminEmail, Password: *adminPass, Role: "admin"}
		if err := seed.Validate(); err != nil {
			return fmt.Errorf("invalid admin account: %w", err)
		}
		values["DEV_ADMIN_EMAIL"] = seed.Email
		values["DEV_ADMIN_PASSWORD"] = seed.Password
	}

	if err := envutil.WriteDotEnv(*envPath, values, *force); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", *envPath)
	return nil
}

func runCommand(args []string) error {
	if len(args) < 1 {
		return errors.New("missing run target: client | api | all")
	}

	if err := envutil.LoadDotEnv(".env"); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogColor)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch args[0] {
	case "client":
		return runClient(ctx, cfg, logger)
	case "api":
		return runAPI(ctx, logger)
	case "all":
		return runAll(ctx, cfg, logger)
	default:
		return fmt.Errorf("unknown run target %q", args[0])
	}
}

func runClient(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if err := ensureParentDirs(cfg.StoragePath); err != nil {
		return err
	}
	if err := clientapp.Run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runAPI(ctx context.Context, logger *slog.Logger) error {
	cfg := devapi.ConfigFromEnv()
	if err := devapi.Run(ctx, cfg, logger.With("component", "devapi")); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runAll(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	errCh := make(chan error, 2)

	go func() { errCh <- runAPI(ctx, logger) }()
	go func() {
		time.Sleep(500 * time.Millisecond)
		errCh <- runClient(ctx, cfg, logger)
	}()

	for i := 0; i < 2; i++ {
		err := <-errCh
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	}
	return nil
}

func runStorage(args []string) error {
	if len(args) < 1 || args[0] != "prune" {
		return fmt.Errorf("%w: hrsuite storage prune [--older-than 720h]", ErrUsage)
	}
	fs := flag.NewFlagSet("storage prune", flag.ContinueOnError)
	olderThan := fs.Duration("older-than", 30*24*time.Hour, "drop signed-out browsers idle for this long")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	if *olderThan <= 0 {
		return errors.New("--older-than must be positive")
	}

	if err := envutil.LoadDotEnv(".env"); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	ctx := context.Background()
	db, err := storage.Open(ctx, cfg.StoragePath)
	if err != nil {
		return err
	}
	defer db.Close()

	removed, err := db.Prune(ctx, time.Now().Add(-*olderThan))
	if err != nil {
		return err
	}
	fmt.Printf("removed %d stored values from idle browsers\n", removed)
	return nil
}

func ensureParentDirs(paths ...string) error {
	for _, p := range paths {
		dir := filepath.Dir(p)
		if dir == "." || dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}
