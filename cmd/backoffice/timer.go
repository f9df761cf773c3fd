package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/complydesk/backoffice/internal/adapter/confirm"
	"github.com/complydesk/backoffice/internal/adapter/scheduler"
	"github.com/complydesk/backoffice/internal/domain"
	"github.com/complydesk/backoffice/internal/ports"
	"github.com/complydesk/backoffice/internal/usecase"
)

func runTimer(ctx context.Context, app *App, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("timer needs an action: start, pause, resume, stop, show or watch")
	}
	action := args[0]

	fs := flag.NewFlagSet("timer "+action, flag.ExitOnError)
	operator := fs.String("operator", os.Getenv("BACKOFFICE_OPERATOR"), "operator id")
	client := fs.String("client", "", "client id (start)")
	description := fs.String("description", "", "work description (start)")
	fs.Parse(args[1:])

	if *operator == "" {
		return fmt.Errorf("-operator or BACKOFFICE_OPERATOR is required")
	}

	if action == "watch" {
		return watchTimer(ctx, app, *operator)
	}

	ctrl, err := usecase.NewTimerController(ctx, *operator, app.repos.TimeEntries, nil, usecase.TimerOptions{
		Guard:            app.guard,
		OperationTimeout: app.cfg.Timer.OperationTimeout,
		Logger:           app.logger,
	})
	if err != nil {
		return err
	}
	defer ctrl.Close()

	var entry *domain.TimeEntry
	switch action {
	case "start":
		entry, err = ctrl.Start(ctx, *client, *description)
	case "pause":
		entry, err = ctrl.Pause(ctx)
	case "resume":
		entry, err = ctrl.Resume(ctx)
	case "stop":
		entry, err = ctrl.Stop(ctx)
		if err == nil && entry == nil {
			fmt.Println("No active timer.")
			return nil
		}
	case "show":
		return printJSON(ctrl.Snapshot())
	default:
		return fmt.Errorf("unknown timer action %q", action)
	}
	if err != nil {
		return err
	}
	return printJSON(entry)
}

// watchTimer keeps the operator's active timer under reminder supervision
// until it is stopped or the process is interrupted. Interrupting leaves the
// timer running.
func watchTimer(ctx context.Context, app *App, operatorID string) error {
	sched := scheduler.NewCronScheduler(app.logger)
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		sched.Stop(stopCtx)
	}()

	var port ports.ConfirmationPort = confirm.NewTerminal(os.Stdin, os.Stdout)
	ctrl, err := usecase.NewTimerController(ctx, operatorID, app.repos.TimeEntries, port, usecase.TimerOptions{
		Guard:            app.guard,
		Scheduler:        sched,
		ReminderInterval: app.cfg.Timer.ReminderInterval,
		PromptTimeout:    app.cfg.Timer.PromptTimeout,
		OperationTimeout: app.cfg.Timer.OperationTimeout,
		Logger:           app.logger,
	})
	if err != nil {
		return err
	}
	defer ctrl.Close()

	snap := ctrl.Snapshot()
	if snap.State == domain.TimerStateIdle {
		fmt.Println("No active timer.")
		return nil
	}
	fmt.Printf("Watching timer %s for client %s (%s). Ctrl-C to detach.\n",
		snap.Entry.ID, snap.Entry.ClientID, snap.State)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nDetached; the timer keeps running.")
			return nil
		case <-ticker.C:
			// pick up stops and pauses made from other sessions
			state, err := ctrl.Refresh(ctx)
			if err != nil {
				app.logger.Warn(ctx, "Timer refresh failed", map[string]interface{}{"error": err.Error()})
				continue
			}
			if state == domain.TimerStateIdle {
				fmt.Println("Timer stopped.")
				return nil
			}
		}
	}
}
