package cardsuitecli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/phillip-england/cardsuite/internal/dashboard"
	"github.com/phillip-england/cardsuite/internal/devapi"
	"github.com/phillip-england/cardsuite/internal/envutil"
	"github.com/phillip-england/cardsuite/internal/logging"
	"github.com/phillip-england/cardsuite/internal/security"
)

// minAdminPasswordLength is stricter than the login minimum since setup
// creates the one account that can do everything.
const minAdminPasswordLength = 12

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
	case "assets":
		return runAssets(args[1:])
	default:
		return usageError()
	}
}

func PrintUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: cardsuite setup --admin-password <password> [--admin-username admin] [--env-file .env] [--force]")
	fmt.Fprintln(w, "       cardsuite run dashboard|devapi|all")
	fmt.Fprintln(w, "       cardsuite assets build")
}

func usageError() error {
	return fmt.Errorf("%w: cardsuite <setup|run|assets> [...]", ErrUsage)
}

func isHelpArg(arg string) bool {
	switch arg {
	case "help", "-h", "--help":
		return true
	}
	return false
}

func runSetup(args []string) error {
	fs := flag.NewFlagSet("setup", flag.ContinueOnError)
	adminUser := fs.String("admin-username", "admin", "initial admin username")
	adminPass := fs.String("admin-password", "", fmt.Sprintf("initial admin password (min %d chars)", minAdminPasswordLength))
	envPath := fs.String("env-file", ".env", "path to .env file")
	force := fs.Bool("force", false, "overwrite existing env file")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return usageError()
		}
		return err
	}

	if strings.TrimSpace(*adminUser) == "" {
		return errors.New("--admin-username must not be blank")
	}
	if *adminPass == "" {
		return errors.New("--admin-password is required")
	}
	if len(*adminPass) < minAdminPasswordLength {
		return fmt.Errorf("invalid admin password: must be at least %d characters", minAdminPasswordLength)
	}
	if _, err := security.HashPassword(*adminPass); err != nil {
		return fmt.Errorf("invalid admin password: %w", err)
	}
	csrfKey, err := security.RandomToken(32)
	if err != nil {
		return fmt.Errorf("generate csrf key: %w", err)
	}

	values := map[string]string{
		"ADMIN_USERNAME":     strings.TrimSpace(*adminUser),
		"ADMIN_PASSWORD":     *adminPass,
		"DEVAPI_DB_PATH":     filepath.Join("data", "cardsuite.db"),
		"DEVAPI_ADDR":        ":8081",
		"DASHBOARD_ADDR":     ":3000",
		"ADMIN_API_BASE_URL": "http://localhost:8081",
		"CSRF_KEY":           csrfKey,
		"SECURE_COOKIES":     "false",
		"LOG_LEVEL":          "info",
		"LOG_FORMAT":         "console",
	}

	if err := envutil.WriteDotEnv(*envPath, values, *force); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", *envPath)
	return nil
}

func runCommand(args []string) error {
	if len(args) < 1 || isHelpArg(args[0]) {
		return fmt.Errorf("%w: missing run target: dashboard | devapi | all", ErrUsage)
	}

	if err := envutil.LoadDotEnv(".env"); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	logger, err := logging.New(envutil.Or("LOG_LEVEL", "info"), envutil.Or("LOG_FORMAT", "console"))
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch args[0] {
	case "devapi", "api":
		return runDevAPI(ctx, logger)
	case "dashboard", "client":
		return runDashboard(ctx, logger)
	case "all":
		return runAll(ctx, logger)
	default:
		return fmt.Errorf("%w: unknown run target %q", ErrUsage, args[0])
	}
}

func runDevAPI(ctx context.Context, logger *zap.Logger) error {
	cfg := devapi.DefaultConfigFromEnv()
	if err := ensureParentDirs(cfg.DBPath); err != nil {
		return err
	}
	if err := devapi.Run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runDashboard(ctx context.Context, logger *zap.Logger) error {
	cfg := dashboard.DefaultConfigFromEnv()
	if err := dashboard.Run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// runAll starts the API first and gives it a moment to bind before the
// dashboard begins proxying to it. The first failure cancels both.
func runAll(ctx context.Context, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	errCh := make(chan error, 2)

	go func() { errCh <- runDevAPI(ctx, logger) }()
	go func() {
		select {
		case <-time.After(500 * time.Millisecond):
		case <-ctx.Done():
		}
		errCh <- runDashboard(ctx, logger)
	}()

	var first error
	for i := 0; i < 2; i++ {
		err := <-errCh
		if err != nil && !errors.Is(err, context.Canceled) && first == nil {
			first = err
			cancel()
		}
	}
	return first
}

func ensureParentDirs(paths ...string) error {
	for _, p := range paths {
		if p == ":memory:" {
			continue
		}
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
