package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"github.com/urfave/cli"

	"github.com/timeboxd/timeboxd/internal/config"
	"github.com/timeboxd/timeboxd/internal/gcal"
	"github.com/timeboxd/timeboxd/internal/gemini"
	"github.com/timeboxd/timeboxd/internal/notion"
	"github.com/timeboxd/timeboxd/internal/plan"
	"github.com/timeboxd/timeboxd/internal/poller"
	"github.com/timeboxd/timeboxd/internal/server"
	"github.com/timeboxd/timeboxd/internal/storage"
	"github.com/timeboxd/timeboxd/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

// runDaemon wires every component from the environment configuration
// and serves until interrupted.
func runDaemon(_ *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	l := logger.NewStandardLogger(log.New(os.Stderr, "", log.LstdFlags))
	defer l.Close()

	store, err := storage.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	source := notion.NewClient("", cfg.NotionToken, cfg.NotionDatabaseID, cfg.Location, 30*time.Second)

	fs := afero.NewOsFs()
	creds, err := gcal.LoadCredentials(fs, cfg.OAuthClientFile, cfg.OAuthClientJSON)
	if err != nil {
		return err
	}
	token, err := gcal.LoadToken(fs, cfg.TokenFile, cfg.TokenJSON)
	if err != nil {
		return err
	}
	calendar := gcal.NewClient("", cfg.CalendarID, cfg.Location,
		gcal.NewTokenClient(fs, creds, token, cfg.TokenFile))

	var suggester plan.Suggester
	if cfg.SuggesterEnabled() {
		suggester = gemini.NewClient("", cfg.GeminiAPIKey, cfg.GeminiModel, time.Minute)
		l.Info("AI suggester enabled (model %s)", cfg.GeminiModel)
	}

	placer := &plan.Placer{
		Source:   source,
		Calendar: calendar,
		Breakdown: &plan.Breakdown{
			Estimator: plan.NewEstimator(cfg.DefaultBlockMinutes),
			Suggester: suggester,
			Log:       l,
		},
		WorkStart: cfg.WorkStart,
		WorkEnd:   cfg.WorkEnd,
		Location:  cfg.Location,
		Log:       l,
	}

	runner := &server.Runner{
		Placer:   placer,
		Calendar: calendar,
		Store:    store,
		Location: cfg.Location,
		Log:      l,
	}

	srv := server.New(server.Options{
		Addr: cfg.HTTPAddr,
		RPC: &server.RPCConfig{
			Secret:    cfg.RPCSecret,
			Version:   version,
			Commit:    commit,
			BuildType: buildType,
		},
		Runner: runner,
		Log:    l,
	})

	// Stream run progress to watchers and keep a durable event trail.
	placer.OnProgress = func(p plan.Progress) {
		srv.Notifier().Broadcast(string(p.Kind), p)
		switch p.Kind {
		case plan.ProgressEventCreated:
			if err := store.RecordEvent(context.Background(), p.RunID, p.TaskID, p.EventID, p.Title, p.Start, p.End, p.Overflow); err != nil {
				l.Warning("persist event %s: %v", p.EventID, err)
			}
		case plan.ProgressTaskPlanned, plan.ProgressTaskFailed:
			planned := p.Kind == plan.ProgressTaskPlanned
			if err := store.RecordTask(context.Background(), p.TaskID, p.Title, planned); err != nil {
				l.Warning("persist task %s: %v", p.TaskID, err)
			}
		}
	}

	pol := &poller.Poller{
		Interval: cfg.PollInterval,
		CronExpr: cfg.PollCron,
		Run: func(ctx context.Context) error {
			_, err := runner.Trigger(ctx)
			return err
		},
		Log: l,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go pol.Start(ctx)

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Start()
	}()

	if cfg.PollCron != "" {
		l.Info("daemon listening on %s, polling on cron %q", cfg.HTTPAddr, cfg.PollCron)
	} else {
		l.Info("daemon listening on %s, polling every %s", cfg.HTTPAddr, cfg.PollInterval)
	}

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	l.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
