package config

import "context"

// SecretProvider resolves secret pointers (SSM paths in deployed
// environments, plain variable names locally) to plaintext values.
type SecretProvider interface {
	// GetParametersBatch returns key -> value for every key it could resolve.
	// Unresolved keys are omitted rather than reported as errors.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
