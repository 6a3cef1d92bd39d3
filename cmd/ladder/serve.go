package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/derekprior/ladder/internal/api"
	"github.com/derekprior/ladder/internal/league"
	"github.com/derekprior/ladder/internal/trigger"
)

func serveCommand(configFile *string) *cobra.Command {
	var exportDir string
	var seasonID int
	cmd := &cobra.Command{
		Use:          "serve",
		Short:        "Serve the HTTP API and run the scheduled lifecycle triggers",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configFile, exportDir, seasonID)
		},
	}
	cmd.Flags().StringVar(&exportDir, "export-dir", "", "Write generated schedules and brackets as workbooks to this directory")
	cmd.Flags().IntVar(&seasonID, "season", 0, "Active season (default: season.id from config)")
	return cmd
}

func runServe(parent context.Context, configFile, exportDir string, seasonID int) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	e, err := openEngine(ctx, configFile, exportDir)
	if err != nil {
		return err
	}
	defer e.close()

	active := league.SeasonID(e.cfg.Season.ID)
	if seasonID > 0 {
		active = league.SeasonID(seasonID)
	}
	runner := trigger.New(e.orch, e.log, active)
	jobs, err := runner.Schedule(ctx, e.cfg.Location(), e.cfg.Triggers.Tick, e.cfg.Triggers.Rollover)
	if err != nil {
		return err
	}
	jobs.Start()
	defer func() { <-jobs.Stop().Done() }()

	server := api.New(e.log, e.orch, e.store)
	httpServer := &http.Server{
		Addr:              e.cfg.HTTPAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	e.log.WithFields(logrus.Fields{
		"addr":     e.cfg.HTTPAddr,
		"season":   active,
		"tick":     e.cfg.Triggers.Tick,
		"rollover": e.cfg.Triggers.Rollover,
	}).Info("ladder listening")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
