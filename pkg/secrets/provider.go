package secrets

import "context"

// Provider fetches a named secret stored as a flat JSON object.
type Provider interface {
	GetSecret(ctx context.Context, name string) (map[string]string, error)
}
