package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/derekprior/ladder/internal/config"
	"github.com/derekprior/ladder/internal/excel"
	"github.com/derekprior/ladder/internal/league"
	"github.com/derekprior/ladder/internal/season"
	"github.com/derekprior/ladder/internal/store"
)

type engine struct {
	cfg   *config.Config
	log   *logrus.Logger
	store *store.Postgres
	orch  *season.Orchestrator
	close func()
}

// openEngine connects to the configured database and builds the
// orchestrator. When exportDir is set, generated schedules and brackets are
// also written there as workbooks.
func openEngine(ctx context.Context, configFile, exportDir string) (*engine, error) {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database_url is not set (config or LADDER_DATABASE_URL)")
	}
	log := cfg.Logger()

	pool, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	st := store.NewPostgres(pool)
	if err := st.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrating: %w", err)
	}

	notifiers := season.Notifiers{season.LogNotifier{Log: log}}
	if exportDir != "" {
		notifiers = append(notifiers, excel.Notifier{Dir: exportDir, Location: cfg.Location(), Log: log})
	}
	orch := season.New(st, season.LogLedger{Log: log}, notifiers, log, cfg.Orchestrator())
	return &engine{cfg: cfg, log: log, store: st, orch: orch, close: pool.Close}, nil
}

func seasonCommand(configFile *string) *cobra.Command {
	seasonCmd := &cobra.Command{
		Use:   "season",
		Short: "Run season lifecycle steps against the database",
	}

	var exportDir string
	var seasonID int
	seasonCmd.PersistentFlags().StringVar(&exportDir, "export-dir", "", "Write generated schedules and brackets as workbooks to this directory")
	seasonCmd.PersistentFlags().IntVar(&seasonID, "season", 0, "Season to act on (default: season.id from config)")

	active := func(e *engine) league.SeasonID {
		if seasonID > 0 {
			return league.SeasonID(seasonID)
		}
		return league.SeasonID(e.cfg.Season.ID)
	}

	startCmd := &cobra.Command{
		Use:          "start",
		Short:        "Generate the opening season and draw the cup",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine(cmd.Context(), *configFile, exportDir)
			if err != nil {
				return err
			}
			defer e.close()
			return runStart(cmd.Context(), e)
		},
	}

	tickCmd := &cobra.Command{
		Use:          "tick",
		Short:        "Perform every lifecycle transition that is due",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine(cmd.Context(), *configFile, exportDir)
			if err != nil {
				return err
			}
			defer e.close()
			if err := e.orch.Tick(cmd.Context(), active(e)); err != nil {
				return err
			}
			return printTracks(cmd.Context(), e, active(e))
		},
	}

	rolloverCmd := &cobra.Command{
		Use:          "rollover",
		Short:        "Apply promotion and relegation and open the next season",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine(cmd.Context(), *configFile, exportDir)
			if err != nil {
				return err
			}
			defer e.close()
			next, err := e.orch.Rollover(cmd.Context(), active(e), time.Now())
			if err != nil {
				return err
			}
			fmt.Printf("✓ Season %d opened\n", next)
			return printTracks(cmd.Context(), e, next)
		},
	}

	var teamName string
	admitCmd := &cobra.Command{
		Use:          "admit <division> <team-id>",
		Short:        "Place a new team mid-season in place of a synthetic occupant",
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine(cmd.Context(), *configFile, exportDir)
			if err != nil {
				return err
			}
			defer e.close()
			name := teamName
			if name == "" {
				name = args[1]
			}
			team := league.Team{ID: league.TeamID(args[1]), Name: name}
			adm, err := e.orch.AdmitTeam(cmd.Context(), active(e), args[0], team)
			if err != nil {
				return err
			}
			fmt.Printf("✓ %s joined %s, replacing %s\n", team.ID, adm.Division, adm.Replaced)
			return nil
		},
	}
	admitCmd.Flags().StringVar(&teamName, "name", "", "Display name (default: the team id)")

	seasonCmd.AddCommand(startCmd, tickCmd, rolloverCmd, admitCmd)
	return seasonCmd
}

func runStart(ctx context.Context, e *engine) error {
	id := league.SeasonID(e.cfg.Season.ID)
	for _, d := range e.cfg.SeasonDivisions() {
		if err := e.orch.EnterRegular(ctx, d, e.cfg.StartTime()); err != nil {
			return fmt.Errorf("generating %s: %w", d.ID, err)
		}
	}
	if e.cfg.Brackets.Cup != nil {
		b, err := e.orch.StartCup(ctx, id, e.cfg.Amateurs(), e.cfg.StartTime())
		if err != nil {
			return err
		}
		fmt.Printf("✓ Cup drawn: %d entrants, first round %s\n", len(b.Entrants), b.CurrentRound())
	}
	return printTracks(ctx, e, id)
}

func printTracks(ctx context.Context, e *engine, id league.SeasonID) error {
	tracks, err := e.store.Tracks(ctx, id)
	if err != nil {
		return err
	}
	fmt.Printf("\nSeason %d:\n", id)
	fmt.Printf("  %-12s %-10s %s\n", "Division", "Stage", "Bracket")
	for _, t := range tracks {
		fmt.Printf("  %-12s %-10s %s\n", t.Division, t.Stage, t.BracketID)
	}
	return nil
}
