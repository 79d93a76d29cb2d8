package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/luiggisao1/turbonote/internal/config"
	"github.com/luiggisao1/turbonote/internal/security"
	"github.com/luiggisao1/turbonote/internal/storage"
)

const (
	demoEmail    = "demo@example.com"
	demoPassword = "demo1234"
)

var demoNotes = []struct {
	title    string
	content  string
	category string
}{
	{"Shower thought", "What if cursors paginated themselves?", "random"},
	{"Groceries", "Oat milk, coffee, rye bread", "personal"},
	{"Algorithms homework", "Finish the B-tree exercise before Friday", "school"},
	{"Season finale", "Do not spoil episode 8", "drama"},
	{"Another random one", "Second note in the same category", "random"},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.App.Env != "dev" && cfg.App.Env != "test" {
		log.Fatalf("refusing to seed: env must be 'dev' or 'test' (got '%s')", cfg.App.Env)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		log.Fatalf("connect db: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("ping db: %v", err)
	}

	store := storage.New(pool)

	user, err := ensureDemoUser(ctx, store, cfg)
	if err != nil {
		log.Fatalf("seed user: %v", err)
	}
	fmt.Printf("demo user ready: %s (%s)\n", user.Email, user.ID)

	count, err := store.CountNotes(ctx, user.ID)
	if err != nil {
		log.Fatalf("count notes: %v", err)
	}
	if count > 0 {
		fmt.Printf("demo user already has %d notes, skipping\n", count)
		return
	}

	for _, n := range demoNotes {
		if _, err := store.CreateNote(ctx, user.ID, n.title, n.content, n.category); err != nil {
			log.Fatalf("create note %q: %v", n.title, err)
		}
	}
	fmt.Printf("seeded %d notes\n", len(demoNotes))
}

func ensureDemoUser(ctx context.Context, store *storage.Store, cfg *config.Config) (*storage.User, error) {
	hash, err := security.HashPassword(demoPassword, security.Argon2Params{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	user, err := store.CreateUser(ctx, demoEmail, demoEmail, hash)
	if errors.Is(err, storage.ErrDuplicateEmail) {
		return store.GetUserByEmail(ctx, demoEmail)
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}
