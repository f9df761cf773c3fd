package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/complydesk/backoffice/internal/adapter/persistence"
	"github.com/complydesk/backoffice/internal/config"
)

func main() {
	timeout := flag.Duration("timeout", 30*time.Second, "migration timeout")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if cfg.Database.Driver == "memory" {
		log.Fatal("DB_DRIVER=memory has no schema to migrate")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	store, err := persistence.Open(ctx, persistence.OpenConfig{
		Driver:         cfg.Database.Driver,
		URL:            cfg.Database.URL,
		ConnectTimeout: cfg.Database.ConnectTimeout,
	})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		log.Fatalf("migration failed: %v", err)
	}
	log.Printf("Schema applied successfully (%s)", cfg.Database.Driver)
}
