package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"fantaco-agents/internal/integrations/llamastack"
	"fantaco-agents/internal/usecase"
)

func newChatCmd(c *cli) *cobra.Command {
	var sessionID, userID string
	cmd := &cobra.Command{
		Use:   "chat MESSAGE",
		Short: "Send one message to the traced chatbot",
		Long: `chat runs the same pipeline as POST /api/v1/chat: optional shield, session
history, the model call and a Langfuse trace when keys are configured.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.deps.ChatService(cmd.Context())
			if err != nil {
				return err
			}
			out, err := svc.Chat(cmd.Context(), usecase.ChatInput{Message: args[0], SessionID: sessionID, UserID: userID})
			if err != nil {
				return err
			}
			if c.json() {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"message":    out.Message,
					"session_id": out.SessionID,
					"user_id":    out.UserID,
					"trace_id":   out.TraceID,
					"tool_calls": out.ToolCalls,
				})
			}
			for _, tc := range out.ToolCalls {
				fmt.Fprintf(cmd.ErrOrStderr(), "tool: %s/%s\n", tc.Server, tc.Name)
			}
			fmt.Fprintln(cmd.OutOrStdout(), out.Message)
			fmt.Fprintf(cmd.ErrOrStderr(), "session: %s\n", out.SessionID)
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Session id to continue")
	cmd.Flags().StringVar(&userID, "user", "", "User id recorded with the trace")
	return cmd
}

func newRespondCmd(c *cli) *cobra.Command {
	var (
		instructions string
		webSearch    bool
		vectorStores []string
		mcpServers   []string
		showTools    bool
	)
	cmd := &cobra.Command{
		Use:   "respond PROMPT",
		Short: "Call the Responses API with optional web search, file search or MCP tools",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tools, err := parseMCPServers(mcpServers)
			if err != nil {
				return err
			}
			if webSearch {
				tools = append(tools, llamastack.WebSearchTool())
			}
			if len(vectorStores) > 0 {
				tools = append(tools, llamastack.FileSearchTool(vectorStores...))
			}

			client, err := c.llamaStack(cmd)
			if err != nil {
				return err
			}
			resp, err := client.CreateResponse(cmd.Context(), llamastack.ResponseRequest{
				Model:        c.settings.InferenceModel,
				Input:        args[0],
				Instructions: instructions,
				Tools:        tools,
			})
			if err != nil {
				return err
			}
			if c.json() {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			if showTools {
				printToolActivity(cmd, resp)
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.OutputText())
			return nil
		},
	}
	cmd.Flags().StringVar(&instructions, "instructions", "", "System instructions")
	cmd.Flags().BoolVar(&webSearch, "web-search", false, "Enable the web search tool")
	cmd.Flags().StringArrayVar(&vectorStores, "vector-store", nil, "Vector store id for file search (repeatable)")
	cmd.Flags().StringArrayVar(&mcpServers, "mcp", nil, "MCP server as label=url (repeatable)")
	cmd.Flags().BoolVar(&showTools, "show-tools", false, "Print tool calls before the answer")
	return cmd
}

func printToolActivity(cmd *cobra.Command, resp llamastack.Response) {
	w := cmd.ErrOrStderr()
	for _, item := range resp.Output {
		switch item.Type {
		case llamastack.OutputMCPListTools:
			names := make([]string, 0, len(item.Tools))
			for _, t := range item.Tools {
				names = append(names, t.Name)
			}
			fmt.Fprintf(w, "[%s] tools: %s\n", item.ServerLabel, strings.Join(names, ", "))
		case llamastack.OutputMCPCall:
			fmt.Fprintf(w, "[%s] %s %s\n", item.ServerLabel, item.Name, item.Arguments)
			if item.Error != "" {
				fmt.Fprintf(w, "  error: %s\n", item.Error)
			}
		case llamastack.OutputWebSearchCall:
			fmt.Fprintf(w, "[web_search] %s\n", item.Status)
		case llamastack.OutputFileSearchCall:
			fmt.Fprintf(w, "[file_search] %s\n", strings.Join(item.Queries, "; "))
		}
	}
}

func newAgentCmd(c *cli) *cobra.Command {
	var (
		instructions string
		mcpServers   []string
		interactive  bool
	)
	cmd := &cobra.Command{
		Use:   "agent [PROMPT...]",
		Short: "Run a multi-turn agent bound to MCP servers",
		Long: `agent sends each prompt argument as a turn of one conversation. With
--interactive it reads turns from stdin until exit, quit, q or EOF.

Without --mcp the customer and finance MCP servers from the environment are bound.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !interactive && len(args) == 0 {
				return errors.New("a prompt is required unless --interactive is set")
			}
			tools, err := parseMCPServers(mcpServers)
			if err != nil {
				return err
			}
			if len(mcpServers) == 0 {
				tools = c.defaultMCPTools()
			}
			client, err := c.llamaStack(cmd)
			if err != nil {
				return err
			}
			session, err := usecase.NewAgentSession(client, c.settings.InferenceModel, instructions, tools...)
			if err != nil {
				return err
			}

			for _, prompt := range args {
				reply, err := session.Turn(cmd.Context(), prompt)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "User> %s\n", prompt)
				for _, call := range reply.ToolCalls {
					fmt.Fprintf(cmd.OutOrStdout(), "  [tool] %s.%s %s\n", call.Server, call.Name, call.Arguments)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Agent> %s\n", reply.Text)
			}
			if interactive {
				return session.Interact(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&instructions, "instructions", "You are a helpful assistant for FantaCo.", "Agent instructions")
	cmd.Flags().StringArrayVar(&mcpServers, "mcp", nil, "MCP server as label=url (repeatable)")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Read further turns from stdin")
	return cmd
}

func (c *cli) defaultMCPTools() []llamastack.Tool {
	var tools []llamastack.Tool
	if u := c.settings.CustomerMCPServerURL; u != "" {
		tools = append(tools, llamastack.MCPTool("customer_mcp", u))
	}
	if u := c.settings.FinanceMCPServerURL; u != "" {
		tools = append(tools, llamastack.MCPTool("finance_mcp", u))
	}
	return tools
}

func newQuestionCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "question QUESTION",
		Short: "Answer a question with the customer and finance MCP servers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.llamaStack(cmd)
			if err != nil {
				return err
			}
			svc, err := usecase.NewQuestionService(client, usecase.QuestionConfig{
				Model:             c.settings.InferenceModel,
				CustomerMCPServer: c.settings.CustomerMCPServerURL,
				FinanceMCPServer:  c.settings.FinanceMCPServerURL,
			}, c.logger)
			if err != nil {
				return err
			}
			out, err := svc.Ask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if c.json() {
				return printJSON(cmd.OutOrStdout(), out)
			}
			for _, call := range out.ToolCalls {
				fmt.Fprintf(cmd.ErrOrStderr(), "[%s] %s %s\n", call.Server, call.Name, call.Arguments)
			}
			fmt.Fprintln(cmd.OutOrStdout(), out.Answer)
			return nil
		},
	}
}
