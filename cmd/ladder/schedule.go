package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/derekprior/ladder/internal/excel"
	"github.com/derekprior/ladder/internal/league"
	"github.com/derekprior/ladder/internal/season"
	"github.com/derekprior/ladder/internal/store"
	"github.com/derekprior/ladder/internal/validator"
)

func scheduleCommand(configFile *string) *cobra.Command {
	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Generate and validate schedules offline",
	}

	var outputFile string
	generateCmd := &cobra.Command{
		Use:          "generate",
		Short:        "Generate the opening season's fixtures into a workbook",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd.Context(), *configFile, outputFile)
		},
	}
	generateCmd.Flags().StringVarP(&outputFile, "output", "o", "schedule.xlsx", "Output Excel file path")

	validateCmd := &cobra.Command{
		Use:          "validate <schedule.xlsx>",
		Short:        "Validate a schedule workbook against the calendar",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(*configFile, args[0])
		},
	}

	scheduleCmd.AddCommand(generateCmd, validateCmd)
	return scheduleCmd
}

func runGenerate(ctx context.Context, configFile, outputPath string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	log := cfg.Logger()

	st := store.NewMemory()
	orch := season.New(st, season.LogLedger{Log: log}, season.LogNotifier{Log: log}, log, cfg.Orchestrator())
	id := league.SeasonID(cfg.Season.ID)

	fixtures := make(map[string][]league.Fixture)
	for _, d := range cfg.SeasonDivisions() {
		if err := orch.EnterRegular(ctx, d, cfg.StartTime()); err != nil {
			return fmt.Errorf("generating %s: %w", d.ID, err)
		}
		if fixtures[d.ID], err = st.Fixtures(ctx, id, d.ID); err != nil {
			return err
		}
	}
	divisions, err := st.Divisions(ctx, id)
	if err != nil {
		return err
	}

	fmt.Println("Per Division:")
	fmt.Printf("  %-12s %6s %9s %9s  %-16s %-16s\n", "Division", "Teams", "Synthetic", "Fixtures", "First", "Last")
	for _, d := range divisions {
		synthetic := 0
		for _, m := range d.Members {
			if m.Team.Synthetic {
				synthetic++
			}
		}
		fx := fixtures[d.ID]
		first, last := "-", "-"
		if len(fx) > 0 {
			first = fx[0].ScheduledAt.In(cfg.Location()).Format("2006-01-02 15:04")
			last = fx[len(fx)-1].ScheduledAt.In(cfg.Location()).Format("2006-01-02 15:04")
		}
		fmt.Printf("  %-12s %6d %9d %9d  %-16s %-16s\n", d.ID, len(d.Members), synthetic, len(fx), first, last)
	}

	f, err := excel.Schedule(divisions, fixtures, cfg.Location())
	if err != nil {
		return fmt.Errorf("generating Excel: %w", err)
	}
	if err := f.SaveAs(outputPath); err != nil {
		return fmt.Errorf("saving file: %w", err)
	}

	fmt.Printf("\n✓ Schedule saved to %s\n", outputPath)
	return nil
}

func runValidate(configFile, schedulePath string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}

	violations, err := validator.Validate(cfg.ScheduleCalendar(), schedulePath)
	if err != nil {
		return fmt.Errorf("validating: %w", err)
	}

	errors := 0
	warnings := 0
	for _, v := range violations {
		switch v.Type {
		case "error":
			errors++
			fmt.Printf("✗ %s: %s\n", v.Sheet, v.Message)
		case "warning":
			warnings++
			fmt.Printf("⚠ %s: %s\n", v.Sheet, v.Message)
		}
	}

	fmt.Printf("\nValidation complete: %d errors, %d warnings\n", errors, warnings)
	if errors > 0 {
		return fmt.Errorf("%d violations found", errors)
	}
	return nil
}
