// Package main provides the CLI entry point for the open-responses gateway,
// an OpenAI-compatible orchestration layer over arbitrary upstream LLM
// providers.
//
// # Basic Usage
//
// Start the server:
//
//	gateway serve --config gateway.yaml
//
// # Environment Variables
//
//   - MODEL_BASE_URL: default upstream base URL when no provider prefix is given
//   - OPEN_RESPONSES_MAX_TOOL_CALLS: buffered-mode tool call limit (default 25)
//   - OPEN_RESPONSES_MAX_TOOL_CALLS_STREAMING: streaming-mode limit (default 30)
//   - OPEN_RESPONSES_MAX_STREAMING_TIMEOUT: streaming deadline in ms (default 300000)
//   - OPENAI_API_KEY, ANTHROPIC_API_KEY, GEMINI_API_KEY: provider credentials
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	root := &cobra.Command{
		Use:           "gateway",
		Short:         "OpenAI-compatible orchestration gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(buildServeCmd(), buildVersionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("gateway %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
