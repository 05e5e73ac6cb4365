package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"ContentCurator/internal/infrastructure/storage"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var (
		limit  int
		runID  string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List archived runs or show one run's results",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(cfg.Archive.DSN) == "" {
				return errors.New("archive is not configured (set archive.dsn or DATABASE_DSN)")
			}
			archive, err := storage.Open(cmd.Context(), cfg.Archive.Driver, cfg.Archive.DSN)
			if err != nil {
				return err
			}
			defer archive.Close()

			if runID != "" {
				results, err := archive.Results(cmd.Context(), runID)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, results)
				}
				rows := make([][]string, 0, len(results))
				for i, r := range results {
					rows = append(rows, []string{fmt.Sprintf("%d", i+1), fmt.Sprintf("%.2f", r.OverallScore), truncate(r.Title, 60), r.Source, r.URL})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"#", "Score", "Title", "Source", "URL"},
					rows,
					[]columnAlignment{alignRight, alignRight, alignLeft, alignLeft, alignLeft},
				))
				return nil
			}

			runs, err := archive.RecentRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No archived runs")
				return nil
			}
			rows := make([][]string, 0, len(runs))
			for _, r := range runs {
				rows = append(rows, []string{
					r.StartedAt.Local().Format("2006-01-02 15:04"),
					r.RunID,
					truncate(r.Query, 40),
					fmt.Sprintf("%d", r.Metrics.TotalResults),
					fmt.Sprintf("%.2f", r.Metrics.AverageScore),
					fmt.Sprintf("%d", r.Metrics.HighQualityCount),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Started", "Run", "Query", "Results", "Average", "High"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to list")
	cmd.Flags().StringVar(&runID, "run", "", "Show the results of one run")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}
