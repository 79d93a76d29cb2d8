// Command sweep deletes refresh-token ledger rows that are already past their
// expiry. It only ever touches expired rows, so running it concurrently with
// the server (or with itself) is safe.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/luiggisao1/turbonote/internal/config"
	"github.com/luiggisao1/turbonote/internal/logging"
	"github.com/luiggisao1/turbonote/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.App.LogLevel, cfg.App.ServiceName+"-sweep", cfg.App.Env)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		logger.Error("db connection failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Error("db ping failed", "error", err)
		os.Exit(1)
	}

	store := storage.New(pool)
	deleted, err := store.DeleteExpiredRefreshTokens(ctx, time.Now())
	if err != nil {
		logger.Error("sweep failed", "error", err)
		os.Exit(1)
	}

	logger.Info("sweep complete", "deleted", deleted)
}
