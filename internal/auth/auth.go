package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"google.golang.org/grpc/metadata"
)

// KeyPrefix starts every action guard API key.
const KeyPrefix = "agk_"

// Authenticator resolves an API key to the caller's identity.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*Principal, error)
}

// Principal is the authenticated caller.
type Principal struct {
	TenantID string
	UserID   string
	// Degraded is set when the key store was unreachable and the request
	// was let through under fail-open.
	Degraded bool
}

// ErrUnauthenticated is returned when no valid credentials are found.
var ErrUnauthenticated = errors.New("unauthenticated")

// TokenFromMetadata extracts an agk_ API key from gRPC metadata.
func TokenFromMetadata(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", ErrUnauthenticated
	}
	values := md.Get("authorization")
	if len(values) == 0 {
		return "", ErrUnauthenticated
	}
	return parseBearer(values[0])
}

// TokenFromRequest extracts an agk_ API key from the Authorization header.
func TokenFromRequest(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", ErrUnauthenticated
	}
	return parseBearer(h)
}

func parseBearer(v string) (string, error) {
	token := strings.TrimSpace(v)
	token = strings.TrimPrefix(token, "Bearer ")
	token = strings.TrimPrefix(token, "bearer ")
	if !strings.HasPrefix(token, KeyPrefix) || len(token) < 8 {
		return "", ErrUnauthenticated
	}
	return token, nil
}

type principalKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal stored by WithPrincipal, or nil.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}
