// Package cli provides the command-line interface for chatvault.
package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chatvault/chatvault/internal/client"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose   bool
	serverURL string

	// API client, created before every command runs
	apiClient *client.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "chatvault",
	Short: "Extract and monitor AI chat history",
	Long: `Chatvault extracts conversation history from AI chat providers
(ChatGPT, Claude, Gemini, Perplexity and custom endpoints), normalizes it
into one canonical format, and can watch providers for new messages.

All commands talk to a running chatvault-server.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}
		apiClient = client.New(serverURL)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server URL (default CHATVAULT_SERVER_URL or http://localhost:8486)")
}

// parseKV splits "key=value" pairs into a string map.
func parseKV(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", pair)
		}
		out[key] = value
	}
	return out, nil
}

// parseParams splits "key=value" pairs into tool parameters, converting
// values that look like numbers or booleans.
func parseParams(pairs []string) (map[string]any, error) {
	raw, err := parseKV(pairs)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(raw))
	for key, value := range raw {
		out[key] = coerceValue(value)
	}
	return out, nil
}

func coerceValue(s string) any {
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n
	}
	return s
}
