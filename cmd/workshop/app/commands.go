// Package app provides the commands of the workshop CLI.
package app

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	fapp "fantaco-agents/internal/app"
	"fantaco-agents/internal/config"
	"fantaco-agents/internal/integrations/llamastack"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

// ExitError carries a process exit code without an extra error message.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

type cli struct {
	envFile  string
	format   string
	settings config.Settings
	logger   *slog.Logger
	deps     *fapp.Deps
}

// NewRootCmd creates the root command of the workshop CLI.
func NewRootCmd() *cobra.Command {
	c := &cli{}
	rootCmd := &cobra.Command{
		Use:               "workshop",
		DisableAutoGenTag: true,
		Short:             "Drive the FantaCo agent workshop services",
		Long: `workshop talks to Llama Stack, the FantaCo customer and finance MCP servers,
Langfuse and Langflow. It replaces the collection of one-off workshop scripts.`,
		PersistentPreRunE: c.init,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&c.envFile, "env-file", ".env", "dotenv file to read before the environment")
	flags.StringVar(&c.format, "format", FormatText, "Output format (text or json)")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.String("base-url", "", "Llama Stack base URL (LLAMA_STACK_BASE_URL)")
	flags.String("model", "", "Inference model (INFERENCE_MODEL)")

	rootCmd.AddCommand(
		newModelsCmd(c),
		newProvidersCmd(c),
		newToolgroupsCmd(c),
		newToolsCmd(c),
		newShieldsCmd(c),
		newVectorStoresCmd(c),
		newChatCmd(c),
		newRespondCmd(c),
		newAgentCmd(c),
		newMCPCmd(c),
		newLangfuseCmd(c),
		newLangflowCmd(c),
		newOrdersCmd(c),
		newInvoicesCmd(c),
		newQuestionCmd(c),
		newLoadtestCmd(c),
	)
	return rootCmd
}

func (c *cli) init(cmd *cobra.Command, _ []string) error {
	v, err := config.New(c.envFile)
	if err != nil {
		return err
	}
	for key, flag := range map[string]string{
		"LOG_LEVEL":            "log-level",
		"LLAMA_STACK_BASE_URL": "base-url",
		"INFERENCE_MODEL":      "model",
	} {
		if err := bindChanged(v, key, cmd, flag); err != nil {
			return err
		}
	}

	c.settings = config.Load(v)
	c.logger = config.NewLogger(cmd.ErrOrStderr(), c.settings.LogLevel, true)
	c.deps = fapp.New(c.settings, c.logger)

	switch c.format {
	case FormatText, FormatJSON:
		return nil
	default:
		return fmt.Errorf("unsupported format %q", c.format)
	}
}

// bindChanged binds flag to key only when the user set it, so that the
// environment keeps precedence over empty flag defaults.
func bindChanged(v *viper.Viper, key string, cmd *cobra.Command, name string) error {
	f := cmd.Root().PersistentFlags().Lookup(name)
	if f == nil || !f.Changed {
		return nil
	}
	return v.BindPFlag(key, f)
}

func (c *cli) llamaStack(cmd *cobra.Command) (*llamastack.Client, error) {
	return c.deps.LlamaStack(cmd.Context())
}

func (c *cli) json() bool {
	return c.format == FormatJSON
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// parseKeyValues turns key=value pairs into a map. Values that parse as JSON
// keep their JSON type, everything else stays a string.
func parseKeyValues(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid argument %q, expected key=value", p)
		}
		var decoded any
		if err := json.Unmarshal([]byte(v), &decoded); err == nil {
			out[k] = decoded
			continue
		}
		out[k] = v
	}
	return out, nil
}

// parseMCPServers parses label=url pairs into Responses API tools.
func parseMCPServers(pairs []string) ([]llamastack.Tool, error) {
	tools := make([]llamastack.Tool, 0, len(pairs))
	for _, p := range pairs {
		label, u, ok := strings.Cut(p, "=")
		if !ok || strings.TrimSpace(label) == "" || strings.TrimSpace(u) == "" {
			return nil, fmt.Errorf("invalid MCP server %q, expected label=url", p)
		}
		tools = append(tools, llamastack.MCPTool(strings.TrimSpace(label), strings.TrimSpace(u)))
	}
	return tools, nil
}
