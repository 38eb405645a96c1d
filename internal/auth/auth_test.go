package auth

import (
	"context"
	"database/sql"
	"errors"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc/metadata"
)

// testAPIKey is the raw API key used in tests.
const testAPIKey = "agk_test_valid_key_1234567890abcdef"

func testHash(t *testing.T) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testAPIKey), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to generate bcrypt hash: %v", err)
	}
	return string(hash)
}

// mockStore implements KeyStore for testing.
type mockStore struct {
	row       *keyRow
	err       error
	callCount atomic.Int32
}

func (m *mockStore) LookupByPrefix(_ context.Context, _ string) (*keyRow, error) {
	m.callCount.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return m.row, nil
}

func TestTokenFromMetadata(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer "+testAPIKey))
	token, err := TokenFromMetadata(ctx)
	if err != nil || token != testAPIKey {
		t.Fatalf("unexpected result: %q, %v", token, err)
	}

	if _, err := TokenFromMetadata(context.Background()); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated without metadata, got %v", err)
	}

	bad := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer tsk_wrong_prefix"))
	if _, err := TokenFromMetadata(bad); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for wrong prefix, got %v", err)
	}
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest("POST", "/", nil)
	if _, err := TokenFromRequest(r); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}

	r.Header.Set("Authorization", "bearer "+testAPIKey)
	token, err := TokenFromRequest(r)
	if err != nil || token != testAPIKey {
		t.Fatalf("unexpected result: %q, %v", token, err)
	}

	r.Header.Set("Authorization", "Bearer agk_")
	if _, err := TokenFromRequest(r); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected short key to be rejected, got %v", err)
	}
}

func TestPrincipalContext(t *testing.T) {
	if PrincipalFromContext(context.Background()) != nil {
		t.Fatal("expected nil principal")
	}
	p := &Principal{TenantID: "t", UserID: "u"}
	if got := PrincipalFromContext(WithPrincipal(context.Background(), p)); got != p {
		t.Fatalf("expected stored principal, got %+v", got)
	}
}

func TestStaticAuth(t *testing.T) {
	a := NewStaticAuthenticator()
	p, err := a.Authenticate(context.Background(), testAPIKey)
	if err != nil {
		t.Fatal(err)
	}
	if p.TenantID != "static" || p.UserID != "static-agk_test" {
		t.Fatalf("unexpected principal: %+v", p)
	}
	if _, err := a.Authenticate(context.Background(), "nope"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestPostgresAuth_ValidKeyIsCached(t *testing.T) {
	store := &mockStore{row: &keyRow{TenantID: "t-1", UserID: "u-1", APIKeyHash: testHash(t)}}
	a := newPostgresAuthenticatorWithStore(store, time.Minute, false, zap.NewNop())

	for i := 0; i < 3; i++ {
		p, err := a.Authenticate(context.Background(), testAPIKey)
		if err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if p.TenantID != "t-1" || p.UserID != "u-1" || p.Degraded {
			t.Fatalf("unexpected principal: %+v", p)
		}
	}
	if n := store.callCount.Load(); n != 1 {
		t.Fatalf("expected 1 store call, got %d", n)
	}
}

func TestPostgresAuth_WrongKeyRejectedEvenWhenFailOpen(t *testing.T) {
	store := &mockStore{row: &keyRow{TenantID: "t-1", UserID: "u-1", APIKeyHash: testHash(t)}}
	a := newPostgresAuthenticatorWithStore(store, time.Minute, true, zap.NewNop())

	if _, err := a.Authenticate(context.Background(), "agk_test_wrong"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}

	store.err = sql.ErrNoRows
	if _, err := a.Authenticate(context.Background(), "agk_unknown_key"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for unknown prefix, got %v", err)
	}
}

func TestPostgresAuth_StoreDown(t *testing.T) {
	store := &mockStore{err: errors.New("connection refused")}

	closed := newPostgresAuthenticatorWithStore(store, time.Minute, false, zap.NewNop())
	if _, err := closed.Authenticate(context.Background(), testAPIKey); err == nil || errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected store error, got %v", err)
	}

	open := newPostgresAuthenticatorWithStore(store, time.Minute, true, zap.NewNop())
	p, err := open.Authenticate(context.Background(), testAPIKey)
	if err != nil {
		t.Fatalf("expected fail-open, got %v", err)
	}
	if !p.Degraded {
		t.Fatalf("expected degraded principal, got %+v", p)
	}
}

func TestPostgresAuth_StaleRefreshDropsRevokedKey(t *testing.T) {
	store := &mockStore{row: &keyRow{TenantID: "t-1", UserID: "u-1", APIKeyHash: testHash(t)}}
	a := newPostgresAuthenticatorWithStore(store, time.Millisecond, false, zap.NewNop())

	if _, err := a.Authenticate(context.Background(), testAPIKey); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)

	store.err = sql.ErrNoRows
	// Stale hit still succeeds and triggers the refresh.
	if _, err := a.Authenticate(context.Background(), testAPIKey); err != nil {
		t.Fatalf("expected stale hit, got %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for a.cache.Get(testAPIKey).Hit {
		if time.Now().After(deadline) {
			t.Fatal("revoked key was not evicted")
		}
		time.Sleep(time.Millisecond)
	}
}
