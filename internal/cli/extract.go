package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	extractTool   string
	extractParams []string
	extractNoWait bool
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Run an extraction job",
	Long: `Submit an extraction job and watch its progress. The credential must
be validated first (the server validates it again as part of the job).

Examples:
  chatvault extract --provider chatgpt --tool extract_chatgpt_conversations \
    --cred session_token=env:CHATGPT_TOKEN --param max_conversations=50
  chatvault extract --provider claude --tool extract_claude_conversations \
    --cred session_cookie=env:CLAUDE_COOKIE --no-wait`,
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().StringVarP(&credProvider, "provider", "p", "", "provider id (required)")
	extractCmd.Flags().StringSliceVarP(&credPairs, "cred", "c", nil, "credential field key=value (repeatable)")
	extractCmd.Flags().StringVar(&credOrganization, "org", "", "organization scope")
	extractCmd.Flags().StringVar(&credWorkspace, "workspace", "", "workspace scope")
	extractCmd.Flags().StringVarP(&extractTool, "tool", "t", "", "extraction tool name (required)")
	extractCmd.Flags().StringSliceVar(&extractParams, "param", nil, "tool parameter key=value (repeatable)")
	extractCmd.Flags().BoolVar(&extractNoWait, "no-wait", false, "submit and return without watching progress")

	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	if extractTool == "" {
		return fmt.Errorf("--tool is required")
	}
	cred, err := credentialFromFlags()
	if err != nil {
		return err
	}
	params, err := parseParams(extractParams)
	if err != nil {
		return fmt.Errorf("parse --param: %w", err)
	}

	ctx := context.Background()

	// Validate up front so a bad credential fails fast instead of
	// surfacing as a failed job.
	record, err := apiClient.ValidateCredentials(ctx, cred)
	if err != nil {
		return fmt.Errorf("validate credentials: %w", err)
	}
	if verbose {
		fmt.Printf("Credentials valid, fingerprint %s\n", record.Fingerprint)
	}

	job, err := apiClient.StartExtraction(ctx, cred, extractTool, params)
	if err != nil {
		return fmt.Errorf("start extraction: %w", err)
	}

	if extractNoWait {
		fmt.Printf("Job %s submitted. Use 'chatvault jobs %s' to check status.\n", job.ID, job.ID)
		return nil
	}

	return RunJobProgress(apiClient, job)
}
