package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"calorie-app/internal/app"
	"calorie-app/internal/config"
	"calorie-app/internal/database"
	"calorie-app/internal/logging"
	"calorie-app/internal/metrics"
	"calorie-app/internal/nutrition"
	"calorie-app/internal/resolver"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var record bool

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: could not read .env: %v\n", err)
	}

	rootCmd := &cobra.Command{
		Use:          "calorie-resolver",
		Short:        "Resolve food labels to calories and macros",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().BoolVar(&record, "record", false, "store each resolution in DATABASE_PATH")

	rootCmd.AddCommand(resolveCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(cleanupCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.NewFromEnv()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func openStore(cfg *config.Config, logger *zap.Logger) (*metrics.Store, error) {
	db, err := database.NewDB(cfg.DatabasePath, logger.Named("database"))
	if err != nil {
		return nil, err
	}
	return metrics.NewStore(db.SQL), nil
}

func resolveCmd() *cobra.Command {
	var (
		weight     float64
		candidates []string
		debug      bool
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "resolve [label]",
		Short: "Resolve one food label",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			label := strings.Join(args, " ")
			if strings.TrimSpace(label) == "" && len(candidates) == 0 {
				return fmt.Errorf("give a label or at least one --candidate")
			}

			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx := cmd.Context()
			a, err := app.NewApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			result, trace := a.Resolve(ctx, nutrition.FoodQuery{
				RawLabel:             label,
				CandidateLabels:      candidates,
				EstimatedWeightGrams: weight,
			})

			if record {
				if err := recordTrace(ctx, cfg, logger, trace, result); err != nil {
					logger.Warn("failed to record trace", zap.Error(err))
				}
			}

			if asJSON {
				return printJSON(result, trace, debug)
			}
			printResult(label, result)
			if debug {
				fmt.Println()
				fmt.Print(trace.Summary())
			}
			return nil
		},
	}

	cmd.Flags().Float64VarP(&weight, "weight", "w", 0, "portion weight in grams (0 uses the typical weight)")
	cmd.Flags().StringSliceVarP(&candidates, "candidate", "c", nil, "alternative label, repeatable")
	cmd.Flags().BoolVar(&debug, "debug", false, "print the resolution trace")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func recordTrace(ctx context.Context, cfg *config.Config, logger *zap.Logger, tr *resolver.Trace, r nutrition.Result) error {
	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.RecordTrace(ctx, tr, r)
}

func printResult(label string, r nutrition.Result) {
	fmt.Printf("%s -> %s [%s, confidence %.2f]\n", label, r.MatchedName, r.Source, r.Confidence)
	fmt.Printf("  %.0f g: %.0f kcal, protein %.1f g, carbs %.1f g, fat %.1f g\n",
		r.WeightGrams, r.Calories, r.Protein, r.Carbs, r.Fat)
	if r.Calories > 0 {
		bd := r.Totals.MacroBreakdown()
		fmt.Printf("  energy split: %.0f%% protein, %.0f%% carbs, %.0f%% fat\n", bd.ProteinPercent, bd.CarbsPercent, bd.FatPercent)
	}
}

func printJSON(r nutrition.Result, tr *resolver.Trace, withTrace bool) error {
	out := struct {
		Result    nutrition.Result    `json:"result"`
		Breakdown nutrition.Breakdown `json:"breakdown"`
		Trace     *resolver.Trace     `json:"trace,omitempty"`
	}{Result: r, Breakdown: r.Totals.MacroBreakdown()}
	if withTrace {
		out.Trace = tr
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func statsCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show recorded lookups per day and per tier",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			store, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			usage, err := store.GetDailyUsage(ctx, days)
			if err != nil {
				return err
			}
			tiers, err := store.TierStats(ctx, days)
			if err != nil {
				return err
			}
			health, err := store.Health(ctx, cfg.DatabasePath, nil)
			if err != nil {
				return err
			}
			fmt.Printf("%d lookups stored (%s)\n\n", health.StoredTraces, health.DatabaseSize)

			if len(usage) == 0 {
				fmt.Println("No lookups recorded.")
				return nil
			}
			fmt.Println("Day         Lookups  Fallbacks  Avg confidence  kcal")
			for _, u := range usage {
				fmt.Printf("%-10s  %7d  %9d  %14.2f  %.0f\n", u.Date, u.Resolutions, u.Fallbacks, u.AvgConfidence, u.TotalCalories)
			}
			fmt.Println()
			fmt.Println("Tier               Attempts  Hit rate  Errors  Avg ms")
			for _, t := range tiers {
				fmt.Printf("%-17s  %8d  %7.0f%%  %6d  %6.1f\n", t.Tier, t.Attempts, t.HitRate()*100, t.Errors, t.AvgElapsedMS)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 7, "how many days back")
	return cmd
}

func cleanupCmd() *cobra.Command {
	var olderThan int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete recorded lookups older than --older-than days",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan < 1 {
				return fmt.Errorf("--older-than must be at least 1, got %d", olderThan)
			}

			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			store, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.Cleanup(cmd.Context(), olderThan)
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d lookups.\n", n)
			return nil
		},
	}

	cmd.Flags().IntVar(&olderThan, "older-than", 30, "age in days")
	return cmd
}
