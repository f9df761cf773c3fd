package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/complydesk/backoffice/internal/adapter/persistence"
	"github.com/complydesk/backoffice/internal/config"
)

// Seeds a handful of clients, tasks and events for trying the CLI.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if cfg.Database.Driver == "memory" {
		log.Fatal("DB_DRIVER=memory cannot be seeded")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := persistence.Open(ctx, persistence.OpenConfig{Driver: cfg.Database.Driver, URL: cfg.Database.URL})
	if err != nil {
		log.Fatalf("failed to connect db: %v", err)
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		log.Fatalf("failed to apply schema: %v", err)
	}

	operator := getenvDefault("SEED_OPERATOR", "operator-1")
	today := time.Now().UTC().Truncate(24 * time.Hour)
	at := func(days int, hour int) int64 {
		return today.AddDate(0, 0, days).Add(time.Duration(hour) * time.Hour).UnixMilli()
	}

	statements := []struct {
		query string
		args  []interface{}
	}{
		{`INSERT INTO clients (id, name, registration_date) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING`,
			[]interface{}{"client-acme", "Acme Trading Ltd", today.AddDate(-2, 0, -10).Format("2006-01-02")}},
		{`INSERT INTO clients (id, name, registration_date) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING`,
			[]interface{}{"client-beta", "Beta Consulting LLP", today.AddDate(-1, 0, 14).Format("2006-01-02")}},
		{`INSERT INTO clients (id, name, registration_date) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING`,
			[]interface{}{"client-gamma", "Gamma Holdings", nil}},
		{`INSERT INTO compliance_filings (client_id, obligation, last_filed_date) VALUES ($1, $2, $3) ON CONFLICT (client_id, obligation) DO NOTHING`,
			[]interface{}{"client-acme", "ANNUAL_RETURN", today.AddDate(0, -2, 0).Format("2006-01-02")}},
		{`INSERT INTO tasks (id, title, owner_id, start_time, end_time) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (id) DO NOTHING`,
			[]interface{}{"task-vat", "Prepare VAT return", operator, at(1, 9), at(1, 10)}},
		{`INSERT INTO events (id, title, organizer_id, start_time, end_time) VALUES ($1, $2, $3, $4, $5) ON CONFLICT (id) DO NOTHING`,
			[]interface{}{"event-review", "Year-end review", "manager-1", at(1, 11), at(1, 12)}},
		{`INSERT INTO event_attendees (event_id, user_id) VALUES ($1, $2) ON CONFLICT (event_id, user_id) DO NOTHING`,
			[]interface{}{"event-review", operator}},
	}

	for _, s := range statements {
		if _, err := store.DB.ExecContext(ctx, s.query, s.args...); err != nil {
			log.Fatalf("failed to seed: %v", err)
		}
	}

	fmt.Printf("Seeded 3 clients, 1 task and 1 event for operator=%s\n", operator)
}

func getenvDefault(k, d string) string {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	return v
}
