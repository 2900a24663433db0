package app

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"fantaco-agents/internal/loadtest"
)

func newLoadtestCmd(c *cli) *cobra.Command {
	var (
		baseURL    string
		concurrent int
		iterations int
		sequential bool
		verbose    bool
	)
	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Load test the /question endpoint of the agent API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if baseURL == "" {
				baseURL = loadtest.DefaultBaseURL(c.settings.ServiceURL)
			}
			out := cmd.OutOrStdout()
			runner, err := loadtest.NewRunner(loadtest.Config{
				BaseURL:    baseURL,
				Concurrent: concurrent,
				Iterations: iterations,
				Sequential: sequential,
				Progress:   out,
			})
			if err != nil {
				return err
			}

			mode := fmt.Sprintf("Concurrent (%d workers)", concurrent)
			if sequential {
				mode = "Sequential"
			}
			rule := strings.Repeat("=", 60)
			fmt.Fprintf(out, "%s\nLOAD TEST - Agent API\n%s\n", rule, rule)
			fmt.Fprintf(out, "SERVICE_URL env:    %s\n", c.settings.ServiceURL)
			fmt.Fprintf(out, "Target URL:         %s\n", baseURL)
			fmt.Fprintf(out, "Total queries:      %d\n", len(runner.Workload()))
			fmt.Fprintf(out, "Iterations:         %d\n", iterations)
			fmt.Fprintf(out, "Mode:               %s\n%s\n\n", mode, rule)

			fmt.Fprintln(out, "Checking server connectivity...")
			status, err := runner.Check(cmd.Context())
			if err != nil {
				fmt.Fprintf(out, "Error: Cannot connect to server at %s\nDetails: %v\n", baseURL, err)
				return &ExitError{Code: 1}
			}
			fmt.Fprintf(out, "Server is up! Status: %d\n\nStarting load test...\n\n", status)

			results, total := runner.Run(cmd.Context())
			if verbose {
				loadtest.PrintDetails(out, results)
			}
			summary := loadtest.Summarize(results, total)
			summary.Print(out)
			if code := summary.ExitCode(); code != 0 {
				return &ExitError{Code: code}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "", "Base URL of the API (default http://$SERVICE_URL:8000)")
	cmd.Flags().IntVarP(&concurrent, "concurrent", "c", loadtest.DefaultConcurrent, "Number of concurrent requests")
	cmd.Flags().IntVarP(&iterations, "iterations", "n", loadtest.DefaultIterations, "Number of iterations over all queries")
	cmd.Flags().BoolVarP(&sequential, "sequential", "s", false, "Run requests sequentially")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show full response content")
	return cmd
}
