package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"fantaco-agents/internal/integrations/langflow"
	"fantaco-agents/internal/integrations/langfuse"
	"fantaco-agents/internal/ui"
)

func (c *cli) langfuse(cmd *cobra.Command) (*langfuse.Client, error) {
	client, err := c.deps.Langfuse(cmd.Context())
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, errors.New("LANGFUSE_PUBLIC_KEY and LANGFUSE_SECRET_KEY are required")
	}
	return client, nil
}

func newLangfuseCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "langfuse",
		Short: "Inspect and manage Langfuse traces",
	}

	var page, limit int
	traces := &cobra.Command{
		Use:   "traces",
		Short: "List traces",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := c.langfuse(cmd)
			if err != nil {
				return err
			}
			list, err := client.ListTraces(cmd.Context(), page, limit)
			if err != nil {
				return err
			}
			if c.json() {
				return printJSON(cmd.OutOrStdout(), list)
			}
			rows := make([][]string, 0, len(list.Data))
			for _, t := range list.Data {
				rows = append(rows, []string{t.ID, t.Name, t.SessionID, t.UserID, t.Timestamp.Format(time.RFC3339)})
			}
			if err := ui.RenderTable(cmd.OutOrStdout(), []string{"Trace", "Name", "Session", "User", "Timestamp"}, rows, "No traces found."); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "page %d of %d (%d traces)\n", list.Meta.Page, list.Meta.TotalPages, list.Meta.TotalItems)
			return nil
		},
	}
	traces.Flags().IntVar(&page, "page", 1, "Page number")
	traces.Flags().IntVar(&limit, "limit", 50, "Traces per page")

	var (
		name    string
		value   float64
		comment string
	)
	feedback := &cobra.Command{
		Use:   "feedback TRACE_ID",
		Short: "Attach a user feedback score to a trace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.langfuse(cmd)
			if err != nil {
				return err
			}
			if err := client.Score(cmd.Context(), langfuse.Score{
				TraceID: args[0],
				Name:    name,
				Value:   value,
				Comment: comment,
			}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recorded %s=%g on trace %s\n", name, value, args[0])
			return nil
		},
	}
	feedback.Flags().StringVar(&name, "name", "user-feedback", "Score name")
	feedback.Flags().Float64Var(&value, "value", 1, "Score value (1 thumbs up, 0 thumbs down)")
	feedback.Flags().StringVar(&comment, "comment", "", "Free-text comment")

	var (
		rounds int
		yes    bool
	)
	reset := &cobra.Command{
		Use:   "reset",
		Short: "Delete every trace in the project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("refusing to delete all traces without --yes")
			}
			client, err := c.langfuse(cmd)
			if err != nil {
				return err
			}
			n, err := client.ResetTraces(cmd.Context(), rounds)
			if err != nil {
				return fmt.Errorf("deleted %d traces before failing: %w", n, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d traces\n", n)
			return nil
		},
	}
	reset.Flags().IntVar(&rounds, "max-rounds", 100, "Maximum list/delete rounds")
	reset.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm deletion")

	cmd.AddCommand(traces, feedback, reset)
	return cmd
}

func newLangflowCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "langflow",
		Short: "Run Langflow flows",
	}

	var flowID, sessionID string
	run := &cobra.Command{
		Use:   "run INPUT",
		Short: "Send a chat input to a flow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if flowID == "" {
				flowID = c.settings.LangflowFlowID
			}
			if flowID == "" {
				return errors.New("--flow or LANGFLOW_FLOW_ID is required")
			}
			client, err := langflow.NewClient(c.settings.LangflowURL, c.settings.LangflowAPIKey, nil)
			if err != nil {
				return err
			}
			res, err := client.Run(cmd.Context(), flowID, args[0], sessionID)
			if err != nil {
				return err
			}
			if c.json() || res.Text == "" {
				fmt.Fprintln(cmd.OutOrStdout(), string(res.Raw))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Text)
			fmt.Fprintf(cmd.ErrOrStderr(), "session: %s\n", res.SessionID)
			return nil
		},
	}
	run.Flags().StringVar(&flowID, "flow", "", "Flow id (LANGFLOW_FLOW_ID)")
	run.Flags().StringVar(&sessionID, "session", "", "Session id to continue")

	cmd.AddCommand(run)
	return cmd
}
