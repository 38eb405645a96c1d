package registry

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/triage-ai/palisade/services/action_guard/internal/engine"
	"github.com/triage-ai/palisade/services/action_guard/internal/erp"
	"go.uber.org/zap"
)

// flakyAdapter fails Ping on demand.
type flakyAdapter struct {
	*erp.DemoAdapter
	pingErr error
	closed  atomic.Bool
}

func (f *flakyAdapter) Ping(context.Context) error { return f.pingErr }
func (f *flakyAdapter) Close() error {
	f.closed.Store(true)
	return nil
}

func countingOpener(count *atomic.Int32, build func() erp.Adapter) Opener {
	return func(context.Context, engine.BackendConfig) (erp.Adapter, error) {
		count.Add(1)
		return build(), nil
	}
}

func TestProvider_DemoIsDefaultAndShared(t *testing.T) {
	p := NewERPProvider(ERPProviderConfig{Logger: zap.NewNop()})
	ctx := context.Background()

	a1, err := p.Adapter(ctx, engine.BackendConfig{})
	if err != nil {
		t.Fatal(err)
	}
	a2, err := p.Adapter(ctx, engine.BackendConfig{Provider: ProviderDemo})
	if err != nil {
		t.Fatal(err)
	}
	if a1 != a2 {
		t.Fatal("expected demo requests to share one adapter")
	}
}

func TestProvider_UnknownProvider(t *testing.T) {
	p := NewERPProvider(ERPProviderConfig{Logger: zap.NewNop()})
	_, err := p.Tools(context.Background(), "user-1", engine.BackendConfig{Provider: "sap"})
	if !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
}

func TestProvider_PostgresRequiresDSN(t *testing.T) {
	p := NewERPProvider(ERPProviderConfig{Logger: zap.NewNop()})
	if _, err := p.Tools(context.Background(), "user-1", engine.BackendConfig{Provider: ProviderPostgres}); err == nil {
		t.Fatal("expected error without dsn")
	}
}

func TestProvider_CacheHitOpensOnce(t *testing.T) {
	var opens atomic.Int32
	p := NewERPProvider(ERPProviderConfig{
		CacheTTL: 30 * time.Second,
		Logger:   zap.NewNop(),
		Openers: map[string]Opener{
			"fake": countingOpener(&opens, func() erp.Adapter { return erp.NewDemoAdapter() }),
		},
	})
	backend := engine.BackendConfig{Provider: "fake", DSN: "postgres://a"}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Adapter(context.Background(), backend); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if n := opens.Load(); n != 1 {
		t.Fatalf("expected 1 open, got %d", n)
	}

	if _, err := p.Adapter(context.Background(), engine.BackendConfig{Provider: "fake", DSN: "postgres://b"}); err != nil {
		t.Fatal(err)
	}
	if n := opens.Load(); n != 2 {
		t.Fatalf("expected a distinct dsn to open a second adapter, got %d opens", n)
	}
}

func TestProvider_StaleUnhealthyAdapterIsReplaced(t *testing.T) {
	var opens atomic.Int32
	first := &flakyAdapter{DemoAdapter: erp.NewDemoAdapter(), pingErr: errors.New("connection reset")}
	second := &flakyAdapter{DemoAdapter: erp.NewDemoAdapter()}
	p := NewERPProvider(ERPProviderConfig{
		CacheTTL: time.Millisecond,
		Logger:   zap.NewNop(),
		Openers: map[string]Opener{
			"fake": func(context.Context, engine.BackendConfig) (erp.Adapter, error) {
				if opens.Add(1) == 1 {
					return first, nil
				}
				return second, nil
			},
		},
	})
	backend := engine.BackendConfig{Provider: "fake", DSN: "x"}

	if _, err := p.Adapter(context.Background(), backend); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)

	// Stale hit still serves the old adapter and triggers a refresh.
	a, err := p.Adapter(context.Background(), backend)
	if err != nil {
		t.Fatal(err)
	}
	if a != first {
		t.Fatal("expected stale adapter while refreshing")
	}

	deadline := time.Now().Add(time.Second)
	for !first.closed.Load() {
		if time.Now().After(deadline) {
			t.Fatal("stale adapter was not replaced")
		}
		time.Sleep(time.Millisecond)
	}
	if got := p.cache.Get(fingerprint(backend)).Value; got != second {
		t.Fatal("expected refreshed adapter in cache")
	}
}

func TestFingerprint_HidesDSN(t *testing.T) {
	key := fingerprint(engine.BackendConfig{Provider: "postgres", DSN: "postgres://user:secret@db/erp"})
	if strings.Contains(key, "secret") {
		t.Fatalf("fingerprint leaks dsn: %s", key)
	}
	if !strings.HasPrefix(key, "postgres:") {
		t.Fatalf("unexpected fingerprint: %s", key)
	}
	if fingerprint(engine.BackendConfig{Provider: "demo"}) != "demo" {
		t.Fatal("expected bare provider for dsn-less back-ends")
	}
}

func TestProvider_CloseClosesAdapters(t *testing.T) {
	fa := &flakyAdapter{DemoAdapter: erp.NewDemoAdapter()}
	p := NewERPProvider(ERPProviderConfig{
		Logger: zap.NewNop(),
		Openers: map[string]Opener{
			"fake": func(context.Context, engine.BackendConfig) (erp.Adapter, error) { return fa, nil },
		},
	})
	if _, err := p.Adapter(context.Background(), engine.BackendConfig{Provider: "fake"}); err != nil {
		t.Fatal(err)
	}
	p.Close()
	if !fa.closed.Load() {
		t.Fatal("expected adapter to be closed")
	}
}

func TestProvider_MaxAdaptersClosesLeastRecentlyUsed(t *testing.T) {
	var opens atomic.Int32
	adapters := map[string]*flakyAdapter{}
	var mu sync.Mutex
	p := NewERPProvider(ERPProviderConfig{
		MaxAdapters: 2,
		Logger:      zap.NewNop(),
		Openers: map[string]Opener{
			"fake": func(_ context.Context, b engine.BackendConfig) (erp.Adapter, error) {
				opens.Add(1)
				fa := &flakyAdapter{DemoAdapter: erp.NewDemoAdapter()}
				mu.Lock()
				adapters[b.DSN] = fa
				mu.Unlock()
				return fa, nil
			},
		},
	})
	defer p.Close()

	for _, dsn := range []string{"postgres://a", "postgres://b", "postgres://c"} {
		if _, err := p.Adapter(context.Background(), engine.BackendConfig{Provider: "fake", DSN: dsn}); err != nil {
			t.Fatal(err)
		}
	}

	if !adapters["postgres://a"].closed.Load() {
		t.Fatal("expected the least recently used adapter to be closed")
	}
	if adapters["postgres://b"].closed.Load() || adapters["postgres://c"].closed.Load() {
		t.Fatal("expected the two most recent adapters to stay open")
	}
	if n := p.cache.Len(); n != 2 {
		t.Fatalf("expected 2 cached adapters, got %d", n)
	}

	// An evicted back-end is reopened on its next use.
	if _, err := p.Adapter(context.Background(), engine.BackendConfig{Provider: "fake", DSN: "postgres://a"}); err != nil {
		t.Fatal(err)
	}
	if n := opens.Load(); n != 4 {
		t.Fatalf("expected the evicted back-end to be reopened, got %d opens", n)
	}
}
