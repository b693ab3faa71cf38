package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var experimentsCmd = &cobra.Command{
	Use:   "experiments",
	Short: "Manage experiments",
}

var experimentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List experiments",
	RunE:  runExperimentsList,
}

var experimentsGetCmd = &cobra.Command{
	Use:   "get <experiment-id>",
	Short: "Show one experiment",
	Args:  cobra.ExactArgs(1),
	RunE:  runExperimentsGet,
}

var experimentsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a draft experiment",
	Long: `Create a draft experiment with inline variant definitions.

Each --variant flag takes "name=<name>,allocation=<percent>":

  variantctl experiments create --name checkout-button \
    --variant name=control,allocation=50 \
    --variant name=green,allocation=50`,
	RunE: runExperimentsCreate,
}

var experimentsStatusCmd = &cobra.Command{
	Use:   "status <experiment-id> <draft|running|paused|completed>",
	Short: "Transition an experiment's lifecycle status",
	Args:  cobra.ExactArgs(2),
	RunE:  runExperimentsStatus,
}

var experimentsDeleteCmd = &cobra.Command{
	Use:   "delete <experiment-id>",
	Short: "Delete an experiment and its assignments",
	Args:  cobra.ExactArgs(1),
	RunE:  runExperimentsDelete,
}

var (
	listStatus  string
	listLimit   int
	listOffset  int
	createName  string
	createDesc  string
	createSpecs []string
)

func init() {
	rootCmd.AddCommand(experimentsCmd)
	experimentsCmd.AddCommand(experimentsListCmd, experimentsGetCmd, experimentsCreateCmd, experimentsStatusCmd, experimentsDeleteCmd)

	experimentsListCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status (draft, running, paused, completed)")
	experimentsListCmd.Flags().IntVar(&listLimit, "limit", 100, "Page size")
	experimentsListCmd.Flags().IntVar(&listOffset, "offset", 0, "Page offset")

	experimentsCreateCmd.Flags().StringVar(&createName, "name", "", "Experiment name (required)")
	experimentsCreateCmd.Flags().StringVar(&createDesc, "description", "", "Experiment description")
	experimentsCreateCmd.Flags().StringArrayVar(&createSpecs, "variant", nil, "Variant as name=<name>,allocation=<percent> (repeatable)")
	_ = experimentsCreateCmd.MarkFlagRequired("name")
}

func runExperimentsList(cmd *cobra.Command, args []string) error {
	path := fmt.Sprintf("/v1/experiments?limit=%d&offset=%d", listLimit, listOffset)
	if listStatus != "" {
		path += "&status=" + listStatus
	}
	var out map[string]any
	if err := client().do(cmd.Context(), "GET", path, nil, &out); err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), out)
}

func runExperimentsGet(cmd *cobra.Command, args []string) error {
	var out map[string]any
	if err := client().do(cmd.Context(), "GET", "/v1/experiments/"+args[0], nil, &out); err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), out)
}

func runExperimentsCreate(cmd *cobra.Command, args []string) error {
	if len(createSpecs) < 2 {
		return fmt.Errorf("at least two --variant flags are required")
	}
	variants := make([]map[string]any, 0, len(createSpecs))
	for _, spec := range createSpecs {
		variant, err := parseVariantSpec(spec)
		if err != nil {
			return err
		}
		variants = append(variants, variant)
	}

	body := map[string]any{
		"name":        createName,
		"description": createDesc,
		"variants":    variants,
	}
	var out map[string]any
	if err := client().do(cmd.Context(), "POST", "/v1/experiments", body, &out); err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), out)
}

func runExperimentsStatus(cmd *cobra.Command, args []string) error {
	body := map[string]any{"status": args[1]}
	var out map[string]any
	if err := client().do(cmd.Context(), "POST", "/v1/experiments/"+args[0]+"/status", body, &out); err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), out)
}

func runExperimentsDelete(cmd *cobra.Command, args []string) error {
	if err := client().do(cmd.Context(), "DELETE", "/v1/experiments/"+args[0], nil, nil); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
	return nil
}

func parseVariantSpec(spec string) (map[string]any, error) {
	variant := map[string]any{}
	for _, pair := range strings.Split(spec, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid variant field %q (want key=value)", pair)
		}
		switch strings.TrimSpace(key) {
		case "name":
			variant["name"] = strings.TrimSpace(value)
		case "allocation":
			allocation, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid allocation %q: %w", value, err)
			}
			variant["traffic_allocation"] = allocation
		case "description":
			variant["description"] = strings.TrimSpace(value)
		default:
			return nil, fmt.Errorf("unknown variant field %q", key)
		}
	}
	if variant["name"] == nil || variant["name"] == "" {
		return nil, fmt.Errorf("variant spec %q is missing a name", spec)
	}
	if variant["traffic_allocation"] == nil {
		return nil, fmt.Errorf("variant spec %q is missing an allocation", spec)
	}
	return variant, nil
}
