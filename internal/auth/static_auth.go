package auth

import (
	"context"
)

// StaticAuthenticator is a development-only authenticator that accepts any agk_ key.
type StaticAuthenticator struct{}

func NewStaticAuthenticator() *StaticAuthenticator {
	return &StaticAuthenticator{}
}

func (a *StaticAuthenticator) Authenticate(_ context.Context, token string) (*Principal, error) {
	if _, err := parseBearer(token); err != nil {
		return nil, err
	}
	return &Principal{
		TenantID: "static",
		UserID:   "static-" + token[:8],
	}, nil
}
