package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var providersCmd = &cobra.Command{
	Use:   "providers [provider-id]",
	Short: "List or inspect chat providers",
	Long: `List all registered chat providers or inspect one by id.

Examples:
  chatvault providers           # List all providers
  chatvault providers claude    # Show details for claude`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProviders,
}

var toolsProvider string

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List provider tools and their parameters",
	RunE:  runTools,
}

func init() {
	toolsCmd.Flags().StringVarP(&toolsProvider, "provider", "p", "", "filter by provider")

	rootCmd.AddCommand(providersCmd)
	rootCmd.AddCommand(toolsCmd)
}

func runProviders(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if len(args) == 1 {
		return showProvider(ctx, args[0])
	}

	providers, err := apiClient.ListProviders(ctx)
	if err != nil {
		return fmt.Errorf("list providers: %w", err)
	}

	fmt.Printf("%-12s %-12s %-8s %s\n", "ID", "NAME", "TOOLS", "CREDENTIALS")
	fmt.Println(strings.Repeat("-", 60))
	for _, p := range providers {
		fmt.Printf("%-12s %-12s %-8d %s\n", p.ID, p.Name, len(p.Tools), strings.Join(p.CredentialFields, ", "))
	}
	return nil
}

func showProvider(ctx context.Context, id string) error {
	desc, err := apiClient.DescribeProvider(ctx, id)
	if err != nil {
		return fmt.Errorf("describe provider: %w", err)
	}

	fmt.Printf("Provider: %s (%s)\n", desc.Name, desc.ID)
	fmt.Printf("  %s\n", desc.Description)
	fmt.Printf("  Credential fields: %s\n", strings.Join(desc.CredentialFields, ", "))
	fmt.Printf("  Polling: min %s, max %s, default %s\n",
		desc.Polling.Min, desc.Polling.Max, desc.Polling.Default)
	fmt.Printf("\nTools (%d):\n", len(desc.Tools))
	for _, tool := range desc.Tools {
		fmt.Printf("  %-32s %s\n", tool.Name, tool.Category)
	}
	return nil
}

func runTools(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	toolList, err := apiClient.ListTools(ctx, toolsProvider)
	if err != nil {
		return fmt.Errorf("list tools: %w", err)
	}
	if len(toolList) == 0 {
		fmt.Println("No tools found.")
		return nil
	}

	for _, tool := range toolList {
		fmt.Printf("%s (%s, %s)\n", tool.Name, tool.ProviderID, tool.Category)
		fmt.Printf("  %s\n", tool.Description)
	}
	return nil
}
