package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/smukkama/flood-forecast/internal/database"
	"github.com/smukkama/flood-forecast/internal/feed"
	"github.com/smukkama/flood-forecast/internal/pipeline"
	"github.com/smukkama/flood-forecast/internal/protocol"
	"github.com/smukkama/flood-forecast/internal/queue"
	"github.com/smukkama/flood-forecast/internal/series"
	"github.com/smukkama/flood-forecast/pkg/config"
)

var (
	jsonOutput bool
	tzName     string
	verbose    bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "forecastctl",
		Short:         "Run the flood level forecast pipeline from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level})))
		},
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print the forecast message as JSON")
	rootCmd.PersistentFlags().StringVar(&tzName, "tz", "", "Display time zone (defaults to DISPLAY_TZ)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(fetchCmd())
	rootCmd.AddCommand(lastCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// runCmd forecasts from a saved feeds.json dump
func runCmd() *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Forecast from a ThingSpeak feeds JSON dump",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, loc, err := loadConfig()
			if err != nil {
				return err
			}

			body, err := os.ReadFile(input)
			if err != nil {
				return fmt.Errorf("failed to read input: %w", err)
			}
			entries, err := feed.Decode(body)
			if err != nil {
				return err
			}

			return forecastEntries(cmd.OutOrStdout(), feed.NewPolicy(cfg.Feed), entries, loc)
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "feeds.json", "Feeds JSON file")
	return cmd
}

// fetchCmd forecasts from the live channel
func fetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Fetch the live feed and forecast it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, loc, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Feed.Timeout+5*time.Second)
			defer cancel()

			client := feed.NewClient(cfg.Feed, slog.Default())
			entries, err := client.FetchFeeds(ctx)
			if err != nil {
				return err
			}

			return forecastEntries(cmd.OutOrStdout(), client.Policy(), entries, loc)
		},
	}
}

// lastCmd prints the newest forecast run the db writer stored
func lastCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "last",
		Short: "Show the latest forecast run stored in Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, loc, err := loadConfig()
			if err != nil {
				return err
			}

			db, err := database.Connect(cfg.Database.ConnectionString())
			if err != nil {
				return err
			}
			defer db.Close()

			run, rows, err := db.LatestForecastRun(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to load latest forecast run: %w", err)
			}
			if run == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "No forecast runs stored yet")
				return nil
			}

			msg := queue.ForecastFromRows(run, rows, loc)
			w := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSON(w, protocol.NewForecastResponse(msg))
			}
			fmt.Fprintf(w, "Run %s generated %s\n\n", msg.RunID, msg.GeneratedAt.In(loc).Format(time.DateTime))
			printForecast(w, msg)
			return nil
		},
	}
}

func loadConfig() (*config.Config, *time.Location, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	loc := cfg.Schedule.DisplayTZ
	if tzName != "" {
		if loc, err = time.LoadLocation(tzName); err != nil {
			return nil, nil, fmt.Errorf("invalid --tz: %w", err)
		}
	}
	return cfg, loc, nil
}

func forecastEntries(w io.Writer, policy feed.Policy, entries []feed.Entry, loc *time.Location) error {
	records := policy.History(entries)
	slog.Debug("applied ingestion policy", "entries", len(entries), "records", len(records))

	out, err := pipeline.Run(records)
	if err != nil {
		return fmt.Errorf("failed to forecast: %w", err)
	}

	msg := protocol.NewForecastMessage(uuid.NewString(), time.Now().UTC(), out.Forecast, loc)
	if jsonOutput {
		return writeJSON(w, protocol.NewForecastResponse(msg))
	}

	printSummary(w, len(entries), out)
	printForecast(w, msg)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSummary(w io.Writer, entries int, out *pipeline.Output) {
	fmt.Fprintf(w, "Entries fetched:     %d\n", entries)
	fmt.Fprintf(w, "Excluded (windows):  %d\n", out.Cleaning.Excluded)
	fmt.Fprintf(w, "Outliers removed:    %d\n", out.Cleaning.Outliers)
	fmt.Fprintf(w, "Readings kept:       %d\n", len(out.Cleaning.Records))
	if out.Cleaning.Regressions > 0 {
		fmt.Fprintf(w, "Timestamp regressions: %d\n", out.Cleaning.Regressions)
	}
	for _, res := range series.Resolutions {
		fmt.Fprintf(w, "Bins at %2d min:      %d\n", series.MinutesOf(res), out.Resampled[res].Len())
	}
	fmt.Fprintln(w)
}

func printForecast(w io.Writer, msg *protocol.ForecastMessage) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RESOLUTION\tALPHA\tRMSE\tMAPE\tNEXT\tAT\tLEVEL\tNOTE")
	for _, r := range msg.Results {
		note := ""
		if r.Overridden {
			note = "cascaded"
		}
		if r.LowConfidence {
			note += " low-confidence"
		}
		fmt.Fprintf(tw, "%d min\t%.1f\t%s\t%s\t%.3f\t%s\t%s\t%s\n",
			r.ResolutionMinutes,
			r.Alpha,
			formatScore(r.RMSE),
			formatScore(r.MAPE),
			r.NextValue,
			r.FormattedTimestamp,
			r.Warning.Level,
			note)
	}
	tw.Flush()
}

func formatScore(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.4f", *v)
}
