package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate provider credentials",
	Long: `Validate credentials against a provider and cache the result server-side.

Credential values can pull from the environment with the env: prefix:

  chatvault validate --provider chatgpt --cred session_token=env:CHATGPT_TOKEN
  chatvault validate --provider claude --cred session_cookie=abc123`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringVarP(&credProvider, "provider", "p", "", "provider id (required)")
	validateCmd.Flags().StringSliceVarP(&credPairs, "cred", "c", nil, "credential field key=value (repeatable)")
	validateCmd.Flags().StringVar(&credOrganization, "org", "", "organization scope")
	validateCmd.Flags().StringVar(&credWorkspace, "workspace", "", "workspace scope")

	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cred, err := credentialFromFlags()
	if err != nil {
		return err
	}

	ctx := context.Background()
	record, err := apiClient.ValidateCredentials(ctx, cred)
	if err != nil {
		return fmt.Errorf("validate credentials: %w", err)
	}

	if !record.Valid {
		return fmt.Errorf("credentials for %s were rejected", record.Provider)
	}

	fmt.Printf("✓ Credentials valid for %s\n", record.Provider)
	fmt.Printf("  Fingerprint: %s\n", record.Fingerprint)
	fmt.Printf("  Permissions: %s\n", strings.Join(record.Permissions, ", "))
	fmt.Printf("  Expires: %s\n", record.ExpiresAt.Format(time.RFC3339))
	return nil
}
