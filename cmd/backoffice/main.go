package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/complydesk/backoffice/internal/config"
	"github.com/complydesk/backoffice/internal/domain"
	"github.com/complydesk/backoffice/internal/logger"
	"github.com/complydesk/backoffice/internal/usecase"
)

// Version and build information
var (
	Version   = "development"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

const usage = `Usage: backoffice <command> [flags]

Commands:
  status <client-id>   filing status of one client
  dashboard            status counts across all clients
  conflicts            overlapping tasks and events for a proposed slot
  timer <action>       start | pause | resume | stop | show | watch
  version              build information
`

func main() {
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	command, args := flag.Arg(0), flag.Args()[1:]
	if command == "version" {
		fmt.Printf("Backoffice\n")
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)
		return
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithCorrelationID(ctx, uuid.NewString())

	app, err := initApp(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer app.Close()

	switch command {
	case "status":
		err = runStatus(ctx, app, args)
	case "dashboard":
		err = runDashboard(ctx, app, args)
	case "conflicts":
		err = runConflicts(ctx, app, args)
	case "timer":
		err = runTimer(ctx, app, args)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		app.logger.Error(ctx, "Command failed", err, map[string]interface{}{"command": command})
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runStatus(ctx context.Context, app *App, args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	date := fs.String("date", "", "reference date YYYY-MM-DD (default today)")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("status takes exactly one client id")
	}

	ref, err := referenceDate(*date)
	if err != nil {
		return err
	}
	status, err := app.compliance.ClientStatus(ctx, fs.Arg(0), ref)
	if err != nil {
		return err
	}
	return printJSON(status)
}

func runDashboard(ctx context.Context, app *App, args []string) error {
	fs := flag.NewFlagSet("dashboard", flag.ExitOnError)
	date := fs.String("date", "", "reference date YYYY-MM-DD (default today)")
	fs.Parse(args)

	ref, err := referenceDate(*date)
	if err != nil {
		return err
	}
	summary, err := app.compliance.Dashboard(ctx, ref)
	if err != nil {
		return err
	}
	return printJSON(summary)
}

func runConflicts(ctx context.Context, app *App, args []string) error {
	fs := flag.NewFlagSet("conflicts", flag.ExitOnError)
	participants := fs.String("participants", "", "comma-separated participant ids")
	start := fs.String("start", "", "slot start, RFC3339")
	end := fs.String("end", "", "slot end, RFC3339")
	exclude := fs.String("exclude", "", "id of the task or event being edited")
	excludeKind := fs.String("exclude-kind", "", "TASK or EVENT; empty excludes both")
	fs.Parse(args)

	startTime, err := time.Parse(time.RFC3339, *start)
	if err != nil {
		return fmt.Errorf("invalid -start: %w", err)
	}
	endTime, err := time.Parse(time.RFC3339, *end)
	if err != nil {
		return fmt.Errorf("invalid -end: %w", err)
	}

	report, err := app.conflicts.FindConflicts(ctx, usecase.ConflictQuery{
		ParticipantIDs: strings.Split(*participants, ","),
		Start:          startTime,
		End:            endTime,
		ExcludeID:      *exclude,
		ExcludeKind:    domain.CommitmentKind(strings.ToUpper(*excludeKind)),
	})
	if err != nil {
		return err
	}
	return printJSON(report)
}

func referenceDate(value string) (time.Time, error) {
	if value == "" {
		now := time.Now()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	d := domain.ParseDate(value)
	if d == nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", value)
	}
	return *d, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
