// walletd is the wallet service entrypoint: it serves the HTTP API or runs
// administrative commands against the same database.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/Noah-Huppert/wallet-service/internal/auth"
	"github.com/Noah-Huppert/wallet-service/internal/config"
	"github.com/Noah-Huppert/wallet-service/internal/infrastructure"
	"github.com/Noah-Huppert/wallet-service/internal/model"
	"github.com/Noah-Huppert/wallet-service/internal/repository"
)

var rootCmd = &cobra.Command{
	Use:   "walletd",
	Short: "Points and credit ledger service",
	Long: `walletd serves the wallet HTTP API: authorities issue signed credit
entries for users, the service computes per-user balances and tracks
single-use inventory items.`,
	SilenceUsage: true,
}

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the HTTP API server",
	RunE:  runAPI,
}

var createAuthorityCmd = &cobra.Command{
	Use:   "create-authority REQUEST_FILE",
	Short: "Create a new authority",
	Long: `Create a new authority from a JSON request file containing
api_base_url, name, and owner {contact, nickname}. Generates the authority's
signing key pair, stores the public key in the directory, and prints the
authority's client configuration JSON (including the private key) to stdout.`,
	Args: cobra.ExactArgs(1),
	RunE: runCreateAuthority,
}

var migrateCmd = &cobra.Command{
	Use:       "migrate COMMAND",
	Short:     "Run database migrations (up, down, status, redo)",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"up", "down", "status", "redo"},
	RunE:      runMigrate,
}

func init() {
	rootCmd.AddCommand(apiCmd)
	rootCmd.AddCommand(createAuthorityCmd)
	rootCmd.AddCommand(migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, nil))
}

func runAPI(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := infrastructure.Bootstrap(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to bootstrap: %w", err)
	}
	defer cleanup()

	logger.Info("connected", "api_version", "1.0.0")

	return app.Run(ctx)
}

func runCreateAuthority(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read authority request file: %w", err)
	}

	var req model.AuthorityRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("authority request file is not valid JSON: %w", err)
	}
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(req); err != nil {
		return fmt.Errorf("authority request file not in the correct format: %w", err)
	}

	pair, err := auth.GenerateKeyPair()
	if err != nil {
		return fmt.Errorf("failed to generate authority key pair: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// No Redis or bus: provisioning is a one-shot administrative write.
	repo := repository.NewWalletRepo(db, nil, nil, cfg.StrictConsume, logger)

	authority, err := repo.CreateAuthority(ctx, req.Name, model.Owner{
		Contact:  req.Owner.Contact,
		Nickname: req.Owner.Nickname,
	}, pair.PublicPEM)
	if err != nil {
		return fmt.Errorf("failed to create authority: %w", err)
	}

	// Stdout carries only the client configuration so it can be piped into
	// a file.
	out, err := json.MarshalIndent(model.ClientConfig{
		ConfigSchemaVersion: "0.1.0",
		APIBaseURL:          req.APIBaseURL,
		AuthorityID:         authority.ID,
		PrivateKey:          pair.PrivatePEM,
	}, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode client configuration: %w", err)
	}
	fmt.Println(string(out))

	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if err := repository.RunMigrations(ctx, cfg.DSN(), args[0]); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	fmt.Println("migration finished successfully")
	return nil
}
