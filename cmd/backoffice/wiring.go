package main

import (
	"context"
	"fmt"

	"github.com/complydesk/backoffice/internal/adapter/memory"
	"github.com/complydesk/backoffice/internal/adapter/persistence"
	"github.com/complydesk/backoffice/internal/adapter/redislock"
	"github.com/complydesk/backoffice/internal/config"
	"github.com/complydesk/backoffice/internal/domain"
	"github.com/complydesk/backoffice/internal/logger"
	"github.com/complydesk/backoffice/internal/ports"
	"github.com/complydesk/backoffice/internal/usecase"
)

// Repositories holds all repository implementations
type Repositories struct {
	TimeEntries ports.TimeEntryRepository
	Commitments ports.CommitmentRepository
	Directory   ports.CustomerDirectory
}

// App holds the wired services for one CLI invocation
type App struct {
	cfg    *config.Config
	logger logger.Logger
	store  *persistence.Store
	repos  Repositories
	guard  ports.StartGuard

	compliance *usecase.ComplianceUseCase
	conflicts  *usecase.ConflictDetector
}

func initApp(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		ServiceName: "backoffice",
	})

	app := &App{cfg: cfg, logger: log}

	if err := app.initRepositories(ctx); err != nil {
		return nil, err
	}

	guard, err := redislock.NewStartGuard(redislock.Config{
		Enabled: cfg.Redis.Enabled,
		URL:     cfg.Redis.URL,
		TTL:     cfg.Redis.LockTTL,
	}, log)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize start guard: %w", err)
	}
	app.guard = guard

	classifier := domain.Classifier{DueSoonDays: cfg.Compliance.DueSoonDays}
	app.compliance = usecase.NewComplianceUseCase(app.repos.Directory, classifier, log)
	app.conflicts = usecase.NewConflictDetector(app.repos.Commitments, log)

	return app, nil
}

// initRepositories initializes all repository implementations
func (a *App) initRepositories(ctx context.Context) error {
	if a.cfg.Database.Driver == "memory" {
		a.logger.Warn(ctx, "Using in-memory storage, nothing is persisted", nil)
		a.repos = Repositories{
			TimeEntries: memory.NewTimeEntryRepository(),
			Commitments: memory.NewCommitmentRepository(),
			Directory:   memory.NewCustomerDirectory(),
		}
		return nil
	}

	store, err := persistence.Open(ctx, persistence.OpenConfig{
		Driver:         a.cfg.Database.Driver,
		URL:            a.cfg.Database.URL,
		MaxConnections: a.cfg.Database.MaxConnections,
		ConnectTimeout: a.cfg.Database.ConnectTimeout,
	})
	if err != nil {
		return err
	}
	a.store = store
	a.logger.Debug(ctx, "Database connection established", map[string]interface{}{
		"driver": a.cfg.Database.Driver,
	})

	a.repos = Repositories{
		TimeEntries: persistence.NewTimeEntryRepository(store),
		Commitments: persistence.NewCommitmentRepository(store),
		Directory:   persistence.NewCustomerDirectory(store),
	}
	return nil
}

// Close releases the database connection
func (a *App) Close() {
	if a.store != nil {
		a.store.Close()
	}
}
