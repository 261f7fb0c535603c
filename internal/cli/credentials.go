package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/chatvault/chatvault/internal/client"
)

// Shared credential flags for commands that authenticate against a provider.
var (
	credProvider     string
	credPairs        []string
	credOrganization string
	credWorkspace    string
)

// credentialFromFlags builds the credential from the --provider/--cred flags.
// Credential values can reference environment variables by prefixing with
// "env:", so secrets stay out of shell history.
func credentialFromFlags() (client.CredentialInput, error) {
	if credProvider == "" {
		return client.CredentialInput{}, fmt.Errorf("--provider is required")
	}
	if len(credPairs) == 0 {
		return client.CredentialInput{}, fmt.Errorf("at least one --cred key=value is required")
	}

	secrets, err := parseKV(credPairs)
	if err != nil {
		return client.CredentialInput{}, fmt.Errorf("parse --cred: %w", err)
	}
	for key, value := range secrets {
		if name, ok := strings.CutPrefix(value, "env:"); ok {
			envValue := os.Getenv(name)
			if envValue == "" {
				return client.CredentialInput{}, fmt.Errorf("credential %s references empty env var %s", key, name)
			}
			secrets[key] = envValue
		}
	}

	return client.CredentialInput{
		Provider:     credProvider,
		Credentials:  secrets,
		Organization: credOrganization,
		Workspace:    credWorkspace,
	}, nil
}
