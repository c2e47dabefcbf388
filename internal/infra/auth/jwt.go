package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/bryanwahyu/medimage-insight/internal/domain/analysis"
)

var (
	ErrMissingToken = errors.New("missing session token")
	ErrInvalidToken = errors.New("invalid session token")
)

// JWTProvider validates HMAC-signed session tokens (e.g. Supabase access
// tokens) and takes the user id from the "sub" claim, falling back to "user_id".
type JWTProvider struct {
	secret   []byte
	audience string
}

func NewJWTProvider(secret, audience string) *JWTProvider {
	return &JWTProvider{secret: []byte(secret), audience: audience}
}

func (p *JWTProvider) Authenticate(_ context.Context, token string) (analysis.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return analysis.Identity{}, ErrMissingToken
	}
	if len(p.secret) == 0 {
		return analysis.Identity{}, fmt.Errorf("%w: no signing secret configured", ErrInvalidToken)
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if p.audience != "" {
		opts = append(opts, jwt.WithAudience(p.audience))
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return p.secret, nil
	}, opts...)
	if err != nil {
		return analysis.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return analysis.Identity{}, ErrInvalidToken
	}
	userID, _ := claims["sub"].(string)
	if userID == "" {
		userID, _ = claims["user_id"].(string)
	}
	if userID == "" {
		return analysis.Identity{}, fmt.Errorf("%w: no subject", ErrInvalidToken)
	}
	return analysis.Identity{UserID: userID, Method: "jwt"}, nil
}
