package config

import "context"

// SecretProvider abstracts secret retrieval so both AWS SSM Parameter
// Store (deployed environments) and plain environment variables (local
// development) can back configuration loading.
type SecretProvider interface {
	// GetParametersBatch resolves multiple secret identifiers and
	// returns a map of key -> plaintext for those found.
	// Implementations batch and retry internally to cope with API rate
	// limits during cold starts.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
