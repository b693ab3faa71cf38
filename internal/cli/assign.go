package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var assignCmd = &cobra.Command{
	Use:   "assign <experiment-id> <user-id>",
	Short: "Resolve a user's variant assignment",
	Long: `Resolve the variant for a user in an experiment. The first call creates
the assignment; repeated calls return the same variant.`,
	Args: cobra.ExactArgs(2),
	RunE: runAssign,
}

var assignmentsCmd = &cobra.Command{
	Use:   "assignments <experiment-id>",
	Short: "List assignments for an experiment",
	Args:  cobra.ExactArgs(1),
	RunE:  runAssignmentsList,
}

var (
	assignmentsVariant string
	assignmentsLimit   int
	assignmentsOffset  int
)

func init() {
	rootCmd.AddCommand(assignCmd, assignmentsCmd)

	assignmentsCmd.Flags().StringVar(&assignmentsVariant, "variant", "", "Filter by variant ID")
	assignmentsCmd.Flags().IntVar(&assignmentsLimit, "limit", 100, "Page size")
	assignmentsCmd.Flags().IntVar(&assignmentsOffset, "offset", 0, "Page offset")
}

func runAssign(cmd *cobra.Command, args []string) error {
	body := map[string]any{"user_id": args[1]}
	var out map[string]any
	if err := client().do(cmd.Context(), "POST", "/v1/experiments/"+args[0]+"/assignments", body, &out); err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), out)
}

func runAssignmentsList(cmd *cobra.Command, args []string) error {
	path := fmt.Sprintf("/v1/experiments/%s/assignments?limit=%d&offset=%d",
		args[0], assignmentsLimit, assignmentsOffset)
	if assignmentsVariant != "" {
		path += "&variant_id=" + assignmentsVariant
	}
	var out map[string]any
	if err := client().do(cmd.Context(), "GET", path, nil, &out); err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), out)
}
