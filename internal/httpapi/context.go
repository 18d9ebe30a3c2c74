package httpapi

import (
	"context"

	"logsvc/internal/domain"
)

type contextKey string

const apiKeyContextKey contextKey = "api_key"

func withAPIKey(ctx context.Context, k *domain.APIKey) context.Context {
	return context.WithValue(ctx, apiKeyContextKey, k)
}

// apiKeyFromContext returns the authenticated key attached to the
// request context by the auth middleware, if any.
func apiKeyFromContext(ctx context.Context) *domain.APIKey {
	k, _ := ctx.Value(apiKeyContextKey).(*domain.APIKey)
	return k
}
