package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	invokeTool   string
	invokeParams []string
)

var invokeCmd = &cobra.Command{
	Use:   "invoke",
	Short: "Invoke a provider tool once",
	Long: `Invoke a provider tool directly and print the raw result, without
creating a job or storing anything.

Example:
  chatvault invoke --provider chatgpt --tool export_chatgpt_conversation \
    --cred session_token=env:CHATGPT_TOKEN \
    --param conversation_id=conv-123 --param format=markdown`,
	RunE: runInvoke,
}

func init() {
	invokeCmd.Flags().StringVarP(&credProvider, "provider", "p", "", "provider id (required)")
	invokeCmd.Flags().StringSliceVarP(&credPairs, "cred", "c", nil, "credential field key=value (repeatable)")
	invokeCmd.Flags().StringVar(&credOrganization, "org", "", "organization scope")
	invokeCmd.Flags().StringVar(&credWorkspace, "workspace", "", "workspace scope")
	invokeCmd.Flags().StringVarP(&invokeTool, "tool", "t", "", "tool name (required)")
	invokeCmd.Flags().StringSliceVar(&invokeParams, "param", nil, "tool parameter key=value (repeatable)")

	rootCmd.AddCommand(invokeCmd)
}

func runInvoke(cmd *cobra.Command, args []string) error {
	if invokeTool == "" {
		return fmt.Errorf("--tool is required")
	}
	cred, err := credentialFromFlags()
	if err != nil {
		return err
	}
	params, err := parseParams(invokeParams)
	if err != nil {
		return fmt.Errorf("parse --param: %w", err)
	}

	ctx := context.Background()

	if _, err := apiClient.ValidateCredentials(ctx, cred); err != nil {
		return fmt.Errorf("validate credentials: %w", err)
	}

	raw, err := apiClient.InvokeTool(ctx, cred, invokeTool, params)
	if err != nil {
		return fmt.Errorf("invoke tool: %w", err)
	}

	fmt.Println(string(raw))
	return nil
}
