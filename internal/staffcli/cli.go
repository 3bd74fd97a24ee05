package staffcli

import (
	"context"
	"crypto/rand"
	"encoding/base64"
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

	"github.com/phillip-england/staffsuite/internal/apiclient"
	"github.com/phillip-england/staffsuite/internal/audit"
	"github.com/phillip-england/staffsuite/internal/clientapp"
	"github.com/phillip-england/staffsuite/internal/employee"
	"github.com/phillip-england/staffsuite/internal/envutil"
	"github.com/phillip-england/staffsuite/internal/roster"
	"github.com/phillip-england/staffsuite/internal/session"
)

var ErrUsage = errors.New("usage")

const secretBytes = 48

func Execute(args []string) error {
	return execute(context.Background(), args, os.Stdout)
}

func execute(ctx context.Context, args []string, out io.Writer) error {
	if len(args) < 1 {
		return usageError()
	}

	switch args[0] {
	case "setup":
		return runSetup(args[1:], out)
	case "run":
		return runCommand(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:], out)
	case "audit":
		return runAudit(ctx, args[1:], out)
	case "help", "-h", "--help":
		PrintUsage(out)
		return nil
	default:
		return usageError()
	}
}

func usageError() error {
	return fmt.Errorf("%w: staffsuite <setup|run|export|audit> [...]", ErrUsage)
}

func PrintUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: staffsuite setup [--api-base-url http://localhost:3333] [--env-file .env] [--force]")
	fmt.Fprintln(w, "       staffsuite run [--env-file .env]")
	fmt.Fprintln(w, "       staffsuite export --email <email> [--password <password>] [--search <text>] [--out employees.xlsx]")
	fmt.Fprintln(w, "       staffsuite audit [--limit 20]")
}

func runSetup(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("setup", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	apiBaseURL := fs.String("api-base-url", clientapp.DefaultConfig().APIBaseURL, "remote employee API base URL")
	addr := fs.String("addr", clientapp.DefaultConfig().Addr, "dashboard listen address")
	envPath := fs.String("env-file", ".env", "path to .env file")
	force := fs.Bool("force", false, "overwrite existing env file")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}

	secret, err := newSecret()
	if err != nil {
		return err
	}
	values := map[string]string{
		"API_BASE_URL":   strings.TrimRight(*apiBaseURL, "/"),
		"CLIENT_ADDR":    *addr,
		"SESSION_SECRET": secret,
		"AUDIT_LOG_FILE": clientapp.DefaultConfig().AuditLogFile,
	}

	cfg := clientapp.DefaultConfig()
	cfg.APIBaseURL = values["API_BASE_URL"]
	cfg.Addr = *addr
	cfg.SessionSecret = secret
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := envutil.WriteDotEnv(*envPath, values, *force); err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %s\n", *envPath)
	return nil
}

func newSecret() (string, error) {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func runCommand(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	envPath := fs.String("env-file", ".env", "path to .env file")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}

	if err := envutil.LoadDotEnv(*envPath); err != nil {
		return fmt.Errorf("load %s: %w", *envPath, err)
	}
	cfg, err := clientapp.ConfigFromEnv()
	if err != nil {
		return err
	}
	if err := ensureParentDirs(cfg.AuditLogFile); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := clientapp.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// runExport signs in with the given credentials and writes the roster, or
// the part matching --search, to an .xlsx file.
func runExport(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	envPath := fs.String("env-file", ".env", "path to .env file")
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password (defaults to $STAFFSUITE_PASSWORD)")
	search := fs.String("search", "", "only export employees matching this text")
	outPath := fs.String("out", "employees.xlsx", "output file")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if err := envutil.LoadDotEnv(*envPath); err != nil {
		return fmt.Errorf("load %s: %w", *envPath, err)
	}
	if *password == "" {
		*password = os.Getenv("STAFFSUITE_PASSWORD")
	}
	if strings.TrimSpace(*email) == "" || *password == "" {
		return fmt.Errorf("%w: export needs --email and --password", ErrUsage)
	}

	defaults := clientapp.DefaultConfig()
	baseURL := envutil.String("API_BASE_URL", defaults.APIBaseURL)
	timeout, err := envutil.Duration("API_TIMEOUT", defaults.APITimeout)
	if err != nil {
		return err
	}
	client := apiclient.New(baseURL, timeout)

	user, token, err := client.Login(ctx, *email, *password)
	if err != nil {
		return fmt.Errorf("sign in: %s", apiclient.UserMessage(err))
	}
	ctx = session.WithSession(ctx, session.Session{
		ID:          "cli",
		User:        user,
		AccessToken: token,
		IssuedAt:    time.Now(),
		MaxAge:      time.Hour,
	})

	list, err := client.ListEmployees(ctx)
	if err != nil {
		return fmt.Errorf("list employees: %s", apiclient.UserMessage(err))
	}
	list = employee.Filter(list, *search)

	if err := ensureParentDirs(*outPath); err != nil {
		return err
	}
	f, err := os.OpenFile(*outPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", *outPath, err)
	}
	if err := roster.WriteXLSX(f, list); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", *outPath, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", *outPath, err)
	}
	fmt.Fprintf(out, "wrote %d employees to %s\n", len(list), *outPath)
	return nil
}

func runAudit(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("audit", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	envPath := fs.String("env-file", ".env", "path to .env file")
	limit := fs.Int("limit", 20, "number of events to show")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if err := envutil.LoadDotEnv(*envPath); err != nil {
		return fmt.Errorf("load %s: %w", *envPath, err)
	}
	dsn := envutil.String("AUDIT_DATABASE_URL", "")
	if dsn == "" {
		return errors.New("AUDIT_DATABASE_URL is not set; file audit logs can be read directly")
	}

	db, err := audit.OpenPostgres(ctx, dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	logger, err := audit.NewPostgresLogger(db)
	if err != nil {
		return err
	}
	events, err := logger.Recent(ctx, *limit)
	if err != nil {
		return err
	}
	printEvents(out, events)
	return nil
}

func printEvents(w io.Writer, events []audit.Event) {
	for _, e := range events {
		line := fmt.Sprintf("%s  %-16s %-8s %s", e.At.Format(time.RFC3339), e.Action, e.Outcome, e.Actor)
		if e.Target != "" {
			line += " -> " + e.Target
		}
		if e.Detail != "" {
			line += " (" + e.Detail + ")"
		}
		fmt.Fprintln(w, line)
	}
}

func ensureParentDirs(paths ...string) error {
	for _, p := range paths {
		if p == "" {
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
