// ABOUTME: Out-of-band maintenance tools operating directly on the store files
// ABOUTME: Purge, domain user cleanup, reset, and tenant listing

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/wrenchworks/wrenchd/internal/config"
	"github.com/wrenchworks/wrenchd/internal/lifecycle"
	"github.com/wrenchworks/wrenchd/internal/store"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: wrench-admin <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  purge                     Hard-delete stores of tenants past retention")
		fmt.Println("  cleanup-users --domain D  Delete platform admins under an email domain")
		fmt.Println("  reset                     Delete the admin and default tenant stores")
		fmt.Println("  tenants                   List the tenant registry")
		fmt.Println()
		fmt.Printf("Retention defaults to %d days; override with %s.\n",
			config.DefaultRetentionDays, config.RetentionEnvVar)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "purge":
		err = runPurge(ctx)
	case "cleanup-users":
		err = runCleanupUsers(ctx)
	case "reset":
		err = runReset()
	case "tenants":
		err = runTenants(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	path := os.Getenv("WRENCH_CONFIG")
	if path == "" {
		configDir := os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("locating config: %w", err)
			}
			configDir = filepath.Join(homeDir, ".config")
		}
		path = filepath.Join(configDir, "wrenchd", "wrenchd.yaml")
	}
	return config.Load(path)
}

func openAdmin(ctx context.Context, cfg *config.Config) (*store.AdminStore, error) {
	return store.NewAdminStore(ctx, filepath.Join(cfg.Data.Dir, cfg.Data.AdminStore))
}

// runPurge implements the retention purge job. It runs out-of-band against
// a server that is normally stopped; the cache here exists only to satisfy
// the evict-before-delete contract.
func runPurge(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	admin, err := openAdmin(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening admin store: %w", err)
	}
	defer admin.Close()

	cache := store.NewCache(cfg.Data.Dir, cfg.Data.AdminStore)
	defer cache.CloseAll()

	mgr := lifecycle.New(admin, cache, cfg.Data.DefaultTenantStore,
		cfg.RetentionWindow(), slog.Default())

	report, err := mgr.Purge(ctx)
	if err != nil {
		return fmt.Errorf("running purge: %w", err)
	}

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)

	fmt.Printf("Retention window: %d days\n", cfg.RetentionDays())
	green.Printf("Purged:  %d\n", len(report.Purged))
	if len(report.Skipped) > 0 {
		yellow.Printf("Skipped: %d (protected)\n", len(report.Skipped))
	}
	if len(report.Failed) > 0 {
		red.Printf("Failed:  %d (see logs)\n", len(report.Failed))
	}
	return nil
}

// runCleanupUsers deletes platform-admin users under one email domain. A
// one-time tool for removing stale internal accounts.
func runCleanupUsers(ctx context.Context) error {
	fs := flag.NewFlagSet("cleanup-users", flag.ExitOnError)
	domain := fs.String("domain", "", "email domain whose platform admins are removed")
	if err := fs.Parse(os.Args[2:]); err != nil {
		return err
	}
	if *domain == "" {
		return fmt.Errorf("--domain is required")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	admin, err := openAdmin(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening admin store: %w", err)
	}
	defer admin.Close()

	n, err := admin.DeleteUsersByDomain(ctx, *domain)
	if err != nil {
		return err
	}

	color.New(color.FgGreen).Printf("Deleted %d platform admin(s) under %s\n", n, *domain)
	return nil
}

// runReset deletes the admin store and the default tenant store so the next
// server start bootstraps cleanly. Tenant stores other than the default are
// left alone.
func runReset() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	for _, name := range []string{cfg.Data.AdminStore, cfg.Data.DefaultTenantStore} {
		path := filepath.Join(cfg.Data.Dir, name)
		for _, p := range []string{path, path + "-wal", path + "-shm"} {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("removing %s: %w", p, err)
			}
		}
		fmt.Printf("removed %s\n", path)
	}
	return nil
}

func runTenants(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	admin, err := openAdmin(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening admin store: %w", err)
	}
	defer admin.Close()

	tenants, err := admin.ListTenants(ctx)
	if err != nil {
		return err
	}

	bold := color.New(color.Bold)
	bold.Printf("%-38s %-20s %-24s %-10s %s\n", "ID", "DOMAIN", "STORE", "STATUS", "DELETED AT")
	for _, t := range tenants {
		deletedAt := "-"
		if t.DeletedAt != nil {
			deletedAt = t.DeletedAt.UTC().Format(time.RFC3339)
		}
		fmt.Printf("%-38s %-20s %-24s %-10s %s\n",
			t.ID, t.Domain, t.StoreID, t.Status, deletedAt)
	}
	return nil
}
