// ABOUTME: Entry point for the wrenchd maintenance-platform server
// ABOUTME: Routes requests to per-tenant SQLite stores behind one HTTP surface

package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/wrenchworks/wrenchd/internal/auth"
	"github.com/wrenchworks/wrenchd/internal/config"
	"github.com/wrenchworks/wrenchd/internal/platform"
	"github.com/wrenchworks/wrenchd/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                               _         _
 __      ___ __ ___ _ __   ___| |__   __| |
 \ \ /\ / / '__/ _ \ '_ \ / __| '_ \ / _' |
  \ V  V /| | |  __/ | | | (__| | | | (_| |
   \_/\_/ |_|  \___|_| |_|\___|_| |_|\__,_|
`

// getConfigPath returns the path to the wrenchd config file.
// Priority: WRENCH_CONFIG env var > XDG_CONFIG_HOME/wrenchd/wrenchd.yaml >
// ~/.config/wrenchd/wrenchd.yaml
func getConfigPath() string {
	if envPath := os.Getenv("WRENCH_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "wrenchd.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "wrenchd", "wrenchd.yaml")
}

// getDataPath returns the default store directory.
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "wrenchd")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: wrenchd <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                    Start the platform server")
		fmt.Println("  bootstrap --email ADDR   Create config and the first platform admin")
		fmt.Println("  health                   Check server health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "bootstrap":
		err = runBootstrap(ctx)
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:  %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:    %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Stores:  %s\n", cfg.Data.Dir)
	fmt.Println()

	logger.Info("starting wrenchd",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"data_dir", cfg.Data.Dir,
	)

	// Bootstrap is blocking: every store is migrated before the listener
	// opens.
	p, err := platform.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("bootstrapping platform: %w", err)
	}

	return p.Run(ctx)
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health/ready", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	fmt.Println(string(body))
	return nil
}

// runBootstrap performs first-time setup:
// 1. Writes a config file with a random JWT secret (if not present)
// 2. Opens the admin store and creates the first platform admin
//
// One-command setup: wrenchd bootstrap --email you@example.com
func runBootstrap(ctx context.Context) error {
	var email string
	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--email" || arg == "-e":
			if i+1 >= len(args) {
				return fmt.Errorf("--email requires a value")
			}
			email = args[i+1]
			i++
		case strings.HasPrefix(arg, "--email="):
			email = strings.TrimPrefix(arg, "--email=")
		default:
			return fmt.Errorf("unexpected argument: %s", arg)
		}
	}
	if email == "" {
		return fmt.Errorf("--email flag is required")
	}

	configPath := getConfigPath()
	dataPath := getDataPath()

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)

	var cfg *config.Config
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		secretBytes := make([]byte, 32)
		if _, err := rand.Read(secretBytes); err != nil {
			return fmt.Errorf("generating JWT secret: %w", err)
		}
		jwtSecret := base64.StdEncoding.EncodeToString(secretBytes)

		if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
		if err := os.MkdirAll(dataPath, 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}

		configContent := fmt.Sprintf(`# wrenchd configuration
# Generated by wrenchd bootstrap

server:
  http_addr: "localhost:8080"

data:
  dir: "%s"

auth:
  jwt_secret: "%s"
  token_ttl: "12h"

retention:
  days: 30

logging:
  level: "info"
  format: "text"
`, dataPath, jwtSecret)

		if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
		green.Printf("  ✓ Created config: %s\n", configPath)

		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
	} else {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cyan.Printf("  Using existing config: %s\n", configPath)
	}

	admin, err := store.NewAdminStore(ctx, filepath.Join(cfg.Data.Dir, cfg.Data.AdminStore))
	if err != nil {
		return fmt.Errorf("opening admin store: %w", err)
	}
	defer admin.Close()

	green.Printf("  ✓ Admin store: %s\n", filepath.Join(cfg.Data.Dir, cfg.Data.AdminStore))

	count, err := admin.CountUsers(ctx)
	if err != nil {
		return fmt.Errorf("checking users: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("bootstrap already complete: %d user(s) exist", count)
	}

	password, err := generatePassword()
	if err != nil {
		return fmt.Errorf("generating password: %w", err)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	user := &store.PlatformUser{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		DisplayName:  "Platform Admin",
		CreatedAt:    time.Now().UTC(),
	}
	if err := admin.CreateUser(ctx, user); err != nil {
		return fmt.Errorf("creating admin user: %w", err)
	}

	green.Printf("  ✓ Created platform admin: %s\n", email)

	fmt.Println()
	green.Println("  Bootstrap complete!")
	fmt.Println()
	cyan.Println("  Platform Admin")
	cyan.Println("  --------------")
	fmt.Printf("  Email:    %s\n", email)
	fmt.Printf("  Password: %s\n", password)
	fmt.Println()
	fmt.Println("  Change the password after first login. To start the server:")
	fmt.Println("    wrenchd serve")
	fmt.Println()

	return nil
}

func generatePassword() (string, error) {
	raw := make([]byte, 18)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
