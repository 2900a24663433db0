package app

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"fantaco-agents/internal/integrations/mcpclient"
	"fantaco-agents/internal/ui"
)

func newMCPCmd(c *cli) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Talk to an MCP server directly",
	}
	cmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")

	tools := &cobra.Command{
		Use:   "tools URL",
		Short: "List the tools of an MCP server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := mcpclient.Dial(cmd.Context(), args[0], timeout)
			if err != nil {
				return err
			}
			defer client.Close()

			list, err := client.ListTools(cmd.Context())
			if err != nil {
				return err
			}
			if c.json() {
				return printJSON(cmd.OutOrStdout(), list)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Server: %s\n", client.ServerName())
			rows := make([][]string, 0, len(list))
			for _, t := range list {
				rows = append(rows, []string{t.Name, strings.Join(t.Properties, ", "), strings.Join(t.Required, ", "), firstLine(t.Description)})
			}
			return ui.RenderTable(cmd.OutOrStdout(), []string{"Tool", "Arguments", "Required", "Description"}, rows, "No tools found.")
		},
	}

	var (
		kv      []string
		rawJSON string
	)
	call := &cobra.Command{
		Use:   "call URL TOOL",
		Short: "Call one tool on an MCP server",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			arguments, err := parseKeyValues(kv)
			if err != nil {
				return err
			}
			if rawJSON != "" {
				if err := json.Unmarshal([]byte(rawJSON), &arguments); err != nil {
					return fmt.Errorf("invalid --json arguments: %w", err)
				}
			}

			client, err := mcpclient.Dial(cmd.Context(), args[0], timeout)
			if err != nil {
				return err
			}
			defer client.Close()

			res, err := client.CallTool(cmd.Context(), args[1], arguments)
			if err != nil {
				return err
			}
			if res.Structured != nil {
				if err := printJSON(cmd.OutOrStdout(), res.Structured); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), res.Text)
			}
			if res.IsError {
				return &ExitError{Code: 1}
			}
			return nil
		},
	}
	call.Flags().StringArrayVarP(&kv, "arg", "a", nil, "Tool argument as key=value (repeatable)")
	call.Flags().StringVar(&rawJSON, "json", "", "Tool arguments as a JSON object, merged over --arg")

	cmd.AddCommand(tools, call)
	return cmd
}
