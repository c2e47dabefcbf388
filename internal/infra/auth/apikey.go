package auth

import (
	"context"
	"crypto/subtle"
	"strings"

	"github.com/bryanwahyu/medimage-insight/internal/domain/analysis"
)

// APIKeyProvider maps static keys to user ids, for service-to-service callers.
type APIKeyProvider struct {
	keys map[string]string // user id -> key
}

func NewAPIKeyProvider(keys map[string]string) *APIKeyProvider {
	return &APIKeyProvider{keys: keys}
}

func (p *APIKeyProvider) Authenticate(_ context.Context, token string) (analysis.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return analysis.Identity{}, ErrMissingToken
	}
	// constant-time comparison to prevent timing attacks
	for user, key := range p.keys {
		if key != "" && subtle.ConstantTimeCompare([]byte(token), []byte(key)) == 1 {
			return analysis.Identity{UserID: user, Method: "api_key"}, nil
		}
	}
	return analysis.Identity{}, ErrInvalidToken
}

// Chain tries each provider in order and returns the first success.
type Chain []analysis.AuthProvider

func (c Chain) Authenticate(ctx context.Context, token string) (analysis.Identity, error) {
	if strings.TrimSpace(token) == "" {
		return analysis.Identity{}, ErrMissingToken
	}
	err := ErrInvalidToken
	for _, p := range c {
		id, perr := p.Authenticate(ctx, token)
		if perr == nil {
			return id, nil
		}
		err = perr
	}
	return analysis.Identity{}, err
}
