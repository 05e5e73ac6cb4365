package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"ContentCurator/internal/app"
	"ContentCurator/internal/domain"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var (
		query  string
		method string
		output string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline for one query",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(query) == "" && len(args) > 0 {
				query = strings.Join(args, " ")
			}
			if output != "json" && output != "table" {
				return fmt.Errorf("unknown output %q (want json or table)", output)
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			application, err := app.New(cmd.Context(), cfg, ctx.logger(cmd))
			if err != nil {
				return err
			}
			defer application.Close()

			report, runErr := application.Run(cmd.Context(), query, method)
			if runErr != nil && domain.KindOf(runErr) != domain.ErrRunCancelled {
				return runErr
			}

			if output == "json" {
				if err := writeJSON(cmd, report); err != nil {
					return err
				}
			} else {
				printReport(cmd.OutOrStdout(), report)
			}
			if runErr != nil {
				return errors.Join(runErr, cmd.Context().Err())
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "Search query")
	cmd.Flags().StringVarP(&method, "method", "m", "", "Evaluation method: standard or directService")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table or json")
	return cmd
}

func printReport(out io.Writer, report domain.RunReport) {
	m := report.Metrics
	fmt.Fprintf(out, "Query:        %s\n", report.Query)
	fmt.Fprintf(out, "Results:      %d (from %d discovered, %d cached)\n", m.TotalResults, report.Stats.Discovered, report.Stats.CacheHits)
	fmt.Fprintf(out, "Average:      %.2f\n", m.AverageScore)
	fmt.Fprintf(out, "High quality: %d (>= %.2f, %.0f%%)\n", m.HighQualityCount, m.HighQualityThreshold, m.QualityRatio()*100)
	if len(m.UniqueDomains) > 0 {
		fmt.Fprintf(out, "Domains:      %s\n", strings.Join(m.UniqueDomains, ", "))
	}
	for source, msg := range report.AdapterErrors {
		fmt.Fprintf(out, "Source %s unavailable: %s\n", source, msg)
	}
	if len(report.Failures) > 0 {
		fmt.Fprintf(out, "Failures:     %d\n", len(report.Failures))
	}
	if len(report.Results) == 0 {
		return
	}

	rows := make([][]string, 0, len(report.Results))
	for i, r := range report.Results {
		score := fmt.Sprintf("%.2f", r.OverallScore)
		if r.Failed() {
			score += " !"
		}
		rows = append(rows, []string{fmt.Sprintf("%d", i+1), score, truncate(r.Title, 60), r.Source, r.URL})
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, renderTable(
		[]string{"#", "Score", "Title", "Source", "URL"},
		rows,
		[]columnAlignment{alignRight, alignRight, alignLeft, alignLeft, alignLeft},
	))
}

func truncate(s string, n int) string {
	runes := []rune(strings.TrimSpace(s))
	if len(runes) <= n {
		return string(runes)
	}
	return string(runes[:n-1]) + "…"
}
