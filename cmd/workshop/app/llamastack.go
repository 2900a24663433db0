package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"fantaco-agents/internal/integrations/llamastack"
	"fantaco-agents/internal/ui"
)

func newModelsCmd(c *cli) *cobra.Command {
	var (
		wait     bool
		llmOnly  bool
		maxTries uint
	)
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List models registered on Llama Stack",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := c.llamaStack(cmd)
			if err != nil {
				return err
			}
			if wait {
				if err := client.WaitReady(cmd.Context(), maxTries, time.Second); err != nil {
					return err
				}
			}
			models, err := client.ListModels(cmd.Context())
			if err != nil {
				return err
			}
			if llmOnly {
				filtered := models[:0]
				for _, m := range models {
					if m.ModelType == "" || m.ModelType == "llm" {
						filtered = append(filtered, m)
					}
				}
				models = filtered
			}
			if c.json() {
				return printJSON(cmd.OutOrStdout(), models)
			}
			rows := make([][]string, 0, len(models))
			for _, m := range models {
				rows = append(rows, []string{m.Name(), m.ProviderID, m.ModelType})
			}
			return ui.RenderTable(cmd.OutOrStdout(), []string{"Identifier", "Provider", "Type"}, rows, "No models found.")
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "Retry until the server answers")
	cmd.Flags().UintVar(&maxTries, "max-tries", 10, "Attempts when --wait is set")
	cmd.Flags().BoolVar(&llmOnly, "llm", false, "Only list LLMs")
	return cmd
}

func newProvidersCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List API providers configured on Llama Stack",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := c.llamaStack(cmd)
			if err != nil {
				return err
			}
			providers, err := client.ListProviders(cmd.Context())
			if err != nil {
				return err
			}
			if c.json() {
				return printJSON(cmd.OutOrStdout(), providers)
			}
			rows := make([][]string, 0, len(providers))
			for _, p := range providers {
				rows = append(rows, []string{p.API, p.ProviderID, p.ProviderType})
			}
			return ui.RenderTable(cmd.OutOrStdout(), []string{"API", "Provider", "Type"}, rows, "No providers found.")
		},
	}
}

func newToolgroupsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "toolgroups",
		Short: "Manage Llama Stack toolgroups",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List registered toolgroups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := c.llamaStack(cmd)
			if err != nil {
				return err
			}
			groups, err := client.ListToolGroups(cmd.Context())
			if err != nil {
				return err
			}
			if c.json() {
				return printJSON(cmd.OutOrStdout(), groups)
			}
			rows := make([][]string, 0, len(groups))
			for _, g := range groups {
				uri := ""
				if g.MCPEndpoint != nil {
					uri = g.MCPEndpoint.URI
				}
				rows = append(rows, []string{g.Identifier, g.ProviderID, uri})
			}
			return ui.RenderTable(cmd.OutOrStdout(), []string{"Toolgroup", "Provider", "MCP Endpoint"}, rows, "No toolgroups found.")
		},
	}

	var provider string
	register := &cobra.Command{
		Use:   "register TOOLGROUP_ID MCP_URL",
		Short: "Register an MCP server as a toolgroup",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.llamaStack(cmd)
			if err != nil {
				return err
			}
			if err := client.RegisterToolGroup(cmd.Context(), args[0], provider, args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered toolgroup %s -> %s\n", args[0], args[1])
			return nil
		},
	}
	register.Flags().StringVar(&provider, "provider", llamastack.MCPProviderID, "Tool runtime provider")

	unregister := &cobra.Command{
		Use:   "unregister TOOLGROUP_ID",
		Short: "Remove a toolgroup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.llamaStack(cmd)
			if err != nil {
				return err
			}
			if err := client.UnregisterToolGroup(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Unregistered toolgroup %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, register, unregister)
	return cmd
}

func newToolsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools [TOOLGROUP_ID]",
		Short: "List tools, optionally of one toolgroup",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.llamaStack(cmd)
			if err != nil {
				return err
			}
			group := ""
			if len(args) == 1 {
				group = args[0]
			}
			tools, err := client.ListTools(cmd.Context(), group)
			if err != nil {
				return err
			}
			if c.json() {
				return printJSON(cmd.OutOrStdout(), tools)
			}
			rows := make([][]string, 0, len(tools))
			for _, t := range tools {
				rows = append(rows, []string{t.DisplayName(), t.ToolgroupID, firstLine(t.Description)})
			}
			return ui.RenderTable(cmd.OutOrStdout(), []string{"Tool", "Toolgroup", "Description"}, rows, "No tools found.")
		},
	}

	var kv []string
	invoke := &cobra.Command{
		Use:   "invoke TOOL_NAME",
		Short: "Invoke a tool through the Llama Stack tool runtime",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kwargs, err := parseKeyValues(kv)
			if err != nil {
				return err
			}
			client, err := c.llamaStack(cmd)
			if err != nil {
				return err
			}
			res, err := client.InvokeTool(cmd.Context(), args[0], kwargs)
			if err != nil {
				return err
			}
			if res.ErrorMessage != "" {
				return fmt.Errorf("tool %s failed (%d): %s", args[0], res.ErrorCode, res.ErrorMessage)
			}
			return printJSON(cmd.OutOrStdout(), res.Content)
		},
	}
	invoke.Flags().StringArrayVarP(&kv, "arg", "a", nil, "Tool argument as key=value (repeatable)")
	cmd.AddCommand(invoke)
	return cmd
}

func newShieldsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shields",
		Short: "Manage Llama Stack safety shields",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List registered shields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := c.llamaStack(cmd)
			if err != nil {
				return err
			}
			shields, err := client.ListShields(cmd.Context())
			if err != nil {
				return err
			}
			if c.json() {
				return printJSON(cmd.OutOrStdout(), shields)
			}
			rows := make([][]string, 0, len(shields))
			for _, s := range shields {
				rows = append(rows, []string{s.Identifier, s.ProviderID, s.ProviderResourceID})
			}
			return ui.RenderTable(cmd.OutOrStdout(), []string{"Shield", "Provider", "Resource"}, rows, "No shields found.")
		},
	}

	var provider, resource string
	register := &cobra.Command{
		Use:   "register SHIELD_ID",
		Short: "Register a shield",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.llamaStack(cmd)
			if err != nil {
				return err
			}
			shield, err := client.RegisterShield(cmd.Context(), args[0], provider, resource)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered shield %s (%s)\n", shield.Identifier, shield.ProviderID)
			return nil
		},
	}
	register.Flags().StringVar(&provider, "provider", "llama-guard", "Safety provider")
	register.Flags().StringVar(&resource, "provider-shield-id", "", "Model backing the shield")

	test := &cobra.Command{
		Use:   "test SHIELD_ID MESSAGE",
		Short: "Run a message through a shield",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.llamaStack(cmd)
			if err != nil {
				return err
			}
			flagged, err := client.Moderate(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if flagged {
				fmt.Fprintln(cmd.OutOrStdout(), "UNSAFE: message violates the shield policy")
				return &ExitError{Code: 2}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "SAFE")
			return nil
		},
	}

	cmd.AddCommand(list, register, test)
	return cmd
}

func newVectorStoresCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "vectorstores",
		Aliases: []string{"vs"},
		Short:   "Manage vector stores for file search",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List vector stores",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := c.llamaStack(cmd)
			if err != nil {
				return err
			}
			stores, err := client.ListVectorStores(cmd.Context())
			if err != nil {
				return err
			}
			if c.json() {
				return printJSON(cmd.OutOrStdout(), stores)
			}
			rows := make([][]string, 0, len(stores))
			for _, s := range stores {
				rows = append(rows, []string{s.ID, s.Name, s.Status, strconv.Itoa(s.FileCounts.Total)})
			}
			return ui.RenderTable(cmd.OutOrStdout(), []string{"ID", "Name", "Status", "Files"}, rows, "No vector stores found.")
		},
	}

	var (
		files     []string
		embedding string
		dimension int
		provider  string
	)
	create := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a vector store, uploading --file documents into it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.llamaStack(cmd)
			if err != nil {
				return err
			}
			if existing, ok, err := client.FindVectorStoreByName(cmd.Context(), args[0]); err != nil {
				return err
			} else if ok {
				fmt.Fprintf(cmd.OutOrStdout(), "Vector store %s already exists (%s)\n", args[0], existing.ID)
				return nil
			}

			ids := make([]string, 0, len(files))
			for _, path := range files {
				f, err := uploadPath(cmd, client, path)
				if err != nil {
					return err
				}
				ids = append(ids, f.ID)
			}
			store, err := client.CreateVectorStore(cmd.Context(), llamastack.CreateVectorStoreRequest{
				Name:               args[0],
				FileIDs:            ids,
				EmbeddingModel:     embedding,
				EmbeddingDimension: dimension,
				ProviderID:         provider,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created vector store %s (%s) with %d files\n", store.Name, store.ID, len(ids))
			return nil
		},
	}
	create.Flags().StringArrayVarP(&files, "file", "f", nil, "Document to upload (repeatable)")
	create.Flags().StringVar(&embedding, "embedding-model", "", "Embedding model")
	create.Flags().IntVar(&dimension, "embedding-dimension", 0, "Embedding dimension")
	create.Flags().StringVar(&provider, "provider", "", "Vector IO provider")

	upload := &cobra.Command{
		Use:   "upload STORE_ID FILE...",
		Short: "Upload files and attach them to a vector store",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.llamaStack(cmd)
			if err != nil {
				return err
			}
			for _, path := range args[1:] {
				f, err := uploadPath(cmd, client, path)
				if err != nil {
					return err
				}
				vf, err := client.AttachFile(cmd.Context(), args[0], f.ID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Attached %s (%s): %s\n", f.Filename, f.ID, vf.Status)
			}
			return nil
		},
	}

	listFiles := &cobra.Command{
		Use:   "files STORE_ID",
		Short: "List files attached to a vector store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.llamaStack(cmd)
			if err != nil {
				return err
			}
			vfs, err := client.ListVectorStoreFiles(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if c.json() {
				return printJSON(cmd.OutOrStdout(), vfs)
			}
			rows := make([][]string, 0, len(vfs))
			for _, f := range vfs {
				rows = append(rows, []string{f.ID, f.Status})
			}
			return ui.RenderTable(cmd.OutOrStdout(), []string{"File", "Status"}, rows, "No files attached.")
		},
	}

	var maxResults int
	search := &cobra.Command{
		Use:   "search STORE_ID QUERY",
		Short: "Search a vector store",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.llamaStack(cmd)
			if err != nil {
				return err
			}
			hits, err := client.SearchVectorStore(cmd.Context(), args[0], args[1], maxResults)
			if err != nil {
				return err
			}
			if c.json() {
				return printJSON(cmd.OutOrStdout(), hits)
			}
			if len(hits) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No results.")
				return nil
			}
			for i, h := range hits {
				fmt.Fprintf(cmd.OutOrStdout(), "[%d] %s (score %.3f)\n%s\n\n", i+1, h.Filename, h.Score, h.Text())
			}
			return nil
		},
	}
	search.Flags().IntVarP(&maxResults, "max-results", "k", 5, "Maximum number of chunks")

	del := &cobra.Command{
		Use:   "delete STORE_ID",
		Short: "Delete a vector store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.llamaStack(cmd)
			if err != nil {
				return err
			}
			if err := client.DeleteVectorStore(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted vector store %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, create, upload, listFiles, search, del)
	return cmd
}

func uploadPath(cmd *cobra.Command, client *llamastack.Client, path string) (llamastack.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return llamastack.File{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return client.UploadFile(cmd.Context(), filepath.Base(path), f)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
