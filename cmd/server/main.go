package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"go-blog/internal/api"
	"go-blog/internal/config"
	"go-blog/internal/db"
	"go-blog/internal/mail"
	redisdb "go-blog/internal/redis"
	"go-blog/internal/role"
	"go-blog/internal/token"
	"go-blog/internal/user"
)

var configPath string

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "blog",
		Short:         "Blog JSON API server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.json", "path to the JSON config file")
	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Prepare the database and start the HTTP server (default)",
		RunE:  serve,
	})
	root.AddCommand(&cobra.Command{
		Use:   "deploy",
		Short: "Migrate the database, seed roles and backfill self follows, then exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := prepare(cmd.Context(), cfg); err != nil {
				return err
			}
			log.Printf("[Main] deploy finished")
			return nil
		},
	})
	return root
}

func loadConfig() (*config.Config, error) {
	// A missing .env is fine; real deployments set the environment directly.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[Main] WARNING: failed to load .env: %v", err)
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// prepare migrates the schema, seeds the role catalog and adds any missing
// self follow edges.
func prepare(ctx context.Context, cfg *config.Config) error {
	if err := db.Init(cfg); err != nil {
		return fmt.Errorf("db init: %w", err)
	}
	if err := role.Seed(ctx, db.DB); err != nil {
		return fmt.Errorf("seed roles: %w", err)
	}
	users := user.NewService(db.DB, token.NewCodec(cfg.Server.SecretKey), user.Options{AdminEmail: cfg.Blog.Admin})
	if _, err := users.EnsureSelfFollows(ctx); err != nil {
		return fmt.Errorf("self follows: %w", err)
	}
	return nil
}

func serve(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := prepare(ctx, cfg); err != nil {
		return err
	}
	rdb, err := redisdb.Connect(ctx, cfg)
	if err != nil {
		return err
	}

	r, err := api.SetupRouter(cfg, rdb, mail.LogSender{})
	if err != nil {
		return err
	}
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("[Main] starting server on %s%s", addr, cfg.Server.Subpath)
	return r.Run(addr)
}
