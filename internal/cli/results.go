package cli

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
)

var resultsCmd = &cobra.Command{
	Use:   "results <experiment-id>",
	Short: "Compute results for an experiment",
	Args:  cobra.ExactArgs(1),
	RunE:  runResults,
}

var exportCmd = &cobra.Command{
	Use:   "export <experiment-id>",
	Short: "Export an experiment bundle to object storage",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

var (
	resultsFormat      string
	resultsEventTypes  []string
	resultsStart       string
	resultsEnd         string
	resultsTimeSeries  bool
	resultsGranularity string
)

func init() {
	rootCmd.AddCommand(resultsCmd, exportCmd)

	resultsCmd.Flags().StringVar(&resultsFormat, "format", "full", "Response shape: full, summary, or metrics_only")
	resultsCmd.Flags().StringSliceVar(&resultsEventTypes, "event-type", nil, "Restrict analysis to these event types (repeatable)")
	resultsCmd.Flags().StringVar(&resultsStart, "start", "", "Analysis window start (RFC3339)")
	resultsCmd.Flags().StringVar(&resultsEnd, "end", "", "Analysis window end (RFC3339)")
	resultsCmd.Flags().BoolVar(&resultsTimeSeries, "time-series", false, "Include the per-variant time series")
	resultsCmd.Flags().StringVar(&resultsGranularity, "granularity", "day", "Time series bucket: hour, day, or week")
}

func runResults(cmd *cobra.Command, args []string) error {
	query := url.Values{}
	query.Set("format", resultsFormat)
	if len(resultsEventTypes) > 0 {
		query.Set("event_types", strings.Join(resultsEventTypes, ","))
	}
	if resultsStart != "" {
		query.Set("start_date", resultsStart)
	}
	if resultsEnd != "" {
		query.Set("end_date", resultsEnd)
	}
	if resultsTimeSeries {
		query.Set("include_time_series", "true")
		query.Set("granularity", resultsGranularity)
	}

	path := fmt.Sprintf("/v1/experiments/%s/results?%s", args[0], query.Encode())
	var out map[string]any
	if err := client().do(cmd.Context(), "GET", path, nil, &out); err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), out)
}

func runExport(cmd *cobra.Command, args []string) error {
	var out map[string]any
	if err := client().do(cmd.Context(), "POST", "/v1/experiments/"+args[0]+"/export", nil, &out); err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), out)
}
