package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Record and inspect behavioral events",
}

var eventsRecordCmd = &cobra.Command{
	Use:   "record <user-id> <event-type>",
	Short: "Record a single event",
	Args:  cobra.ExactArgs(2),
	RunE:  runEventsRecord,
}

var eventsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded events",
	RunE:  runEventsList,
}

var eventsTypesCmd = &cobra.Command{
	Use:   "types",
	Short: "List distinct event types with counts",
	RunE:  runEventsTypes,
}

var (
	recordProps     string
	eventsUser      string
	eventsType      string
	eventsLimit     int
	eventsOffset    int
	eventsSinceFlag string
	eventsUntilFlag string
)

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsRecordCmd, eventsListCmd, eventsTypesCmd)

	eventsRecordCmd.Flags().StringVar(&recordProps, "properties", "", "Event properties as a JSON object")

	eventsListCmd.Flags().StringVar(&eventsUser, "user", "", "Filter by user ID")
	eventsListCmd.Flags().StringVar(&eventsType, "type", "", "Filter by event type")
	eventsListCmd.Flags().StringVar(&eventsSinceFlag, "since", "", "Only events at or after this RFC3339 timestamp")
	eventsListCmd.Flags().StringVar(&eventsUntilFlag, "until", "", "Only events at or before this RFC3339 timestamp")
	eventsListCmd.Flags().IntVar(&eventsLimit, "limit", 100, "Page size")
	eventsListCmd.Flags().IntVar(&eventsOffset, "offset", 0, "Page offset")
}

func runEventsRecord(cmd *cobra.Command, args []string) error {
	body := map[string]any{
		"user_id":    args[0],
		"event_type": args[1],
	}
	if recordProps != "" {
		var props map[string]any
		if err := json.Unmarshal([]byte(recordProps), &props); err != nil {
			return fmt.Errorf("invalid --properties: %w", err)
		}
		body["properties"] = props
	}
	var out map[string]any
	if err := client().do(cmd.Context(), "POST", "/v1/events", body, &out); err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), out)
}

func runEventsList(cmd *cobra.Command, args []string) error {
	path := fmt.Sprintf("/v1/events?limit=%d&offset=%d", eventsLimit, eventsOffset)
	if eventsUser != "" {
		path += "&user_id=" + eventsUser
	}
	if eventsType != "" {
		path += "&event_type=" + eventsType
	}
	if eventsSinceFlag != "" {
		path += "&since=" + eventsSinceFlag
	}
	if eventsUntilFlag != "" {
		path += "&until=" + eventsUntilFlag
	}
	var out map[string]any
	if err := client().do(cmd.Context(), "GET", path, nil, &out); err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), out)
}

func runEventsTypes(cmd *cobra.Command, args []string) error {
	var out map[string]any
	if err := client().do(cmd.Context(), "GET", "/v1/events/types", nil, &out); err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), out)
}
