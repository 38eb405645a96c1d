// Package registry resolves the executable ERP tools for a request's
// back-end configuration.
package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/triage-ai/palisade/services/action_guard/internal/cache"
	"github.com/triage-ai/palisade/services/action_guard/internal/engine"
	"github.com/triage-ai/palisade/services/action_guard/internal/erp"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	ErrToolNotFound    = errors.New("tool not found")
	ErrUnknownProvider = errors.New("unknown erp provider")
)

const (
	ProviderDemo     = "demo"
	ProviderPostgres = "postgres"
)

// DefaultMaxAdapters bounds the number of open back-end adapters.
const DefaultMaxAdapters = 32

// Opener connects to a back-end.
type Opener func(ctx context.Context, backend engine.BackendConfig) (erp.Adapter, error)

// ERPProvider builds tool sets over cached back-end adapters.
type ERPProvider struct {
	openers map[string]Opener
	cache   *cache.Cache[erp.Adapter]
	group   singleflight.Group
	logger  *zap.Logger
}

// ERPProviderConfig configures an ERPProvider.
type ERPProviderConfig struct {
	CacheTTL time.Duration
	// MaxAdapters caps open adapters. The least recently used one is
	// closed when a new back-end would exceed it.
	MaxAdapters int
	Logger      *zap.Logger
	// Openers overrides or extends the built-in providers.
	Openers map[string]Opener
}

// NewERPProvider returns a provider with the demo and postgres back-ends
// registered. All demo requests share one in-memory back-end.
func NewERPProvider(cfg ERPProviderConfig) *ERPProvider {
	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = 60 * time.Second
	}
	maxAdapters := cfg.MaxAdapters
	if maxAdapters <= 0 {
		maxAdapters = DefaultMaxAdapters
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	demo := erp.NewDemoAdapter()
	p := &ERPProvider{
		openers: map[string]Opener{
			ProviderDemo: func(context.Context, engine.BackendConfig) (erp.Adapter, error) {
				return demo, nil
			},
			ProviderPostgres: openPostgres,
		},
		cache: cache.New(cache.Config[erp.Adapter]{
			TTL:        ttl,
			MaxEntries: maxAdapters,
			OnEvict: func(key string, a erp.Adapter) {
				logger.Info("closing evicted adapter", zap.String("backend", key))
				closeAdapter(a)
			},
		}),
		logger: logger,
	}
	for name, open := range cfg.Openers {
		p.openers[name] = open
	}
	return p
}

func openPostgres(ctx context.Context, backend engine.BackendConfig) (erp.Adapter, error) {
	if backend.DSN == "" {
		return nil, fmt.Errorf("postgres provider requires a dsn")
	}
	db, err := erp.OpenPostgres(ctx, backend.DSN)
	if err != nil {
		return nil, err
	}
	return erp.NewSQLAdapter(db), nil
}

// Tools implements engine.ToolProvider. userID is accepted for the
// interface; adapters are shared across users of the same back-end.
func (p *ERPProvider) Tools(ctx context.Context, userID string, backend engine.BackendConfig) (engine.ToolSet, error) {
	adapter, err := p.Adapter(ctx, backend)
	if err != nil {
		return nil, fmt.Errorf("Tools: %w", err)
	}
	return NewToolSet(adapter), nil
}

// Adapter returns the cached adapter for backend, opening it on a miss.
func (p *ERPProvider) Adapter(ctx context.Context, backend engine.BackendConfig) (erp.Adapter, error) {
	if backend.Provider == "" {
		backend.Provider = ProviderDemo
	}
	open, ok := p.openers[backend.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, backend.Provider)
	}

	key := fingerprint(backend)
	cacheResult := p.cache.Get(key)
	if cacheResult.Hit {
		if cacheResult.NeedsRefresh {
			go p.refreshInBackground(key, backend, cacheResult.Value, open)
		}
		return cacheResult.Value, nil
	}

	v, err, _ := p.group.Do(key, func() (any, error) {
		if r := p.cache.Get(key); r.Hit {
			return r.Value, nil
		}
		a, err := open(ctx, backend)
		if err != nil {
			return nil, err
		}
		p.cache.Set(key, a)
		return a, nil
	})
	if err != nil {
		return nil, fmt.Errorf("Adapter %s: %w", backend.Provider, err)
	}
	return v.(erp.Adapter), nil
}

// refreshInBackground keeps a healthy adapter and replaces one that no
// longer answers a ping.
func (p *ERPProvider) refreshInBackground(key string, backend engine.BackendConfig, current erp.Adapter, open Opener) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Evicted in the meantime, so current is already closed.
	if !p.cache.Contains(key) {
		return
	}

	if err := current.Ping(ctx); err == nil {
		p.cache.Set(key, current)
		return
	}

	fresh, err := open(ctx, backend)
	if err != nil {
		p.logger.Warn("background adapter refresh failed",
			zap.String("provider", backend.Provider),
			zap.String("backend", key),
			zap.Error(err),
		)
		// Keep serving the stale adapter; the next expiry retries.
		p.cache.Set(key, current)
		return
	}
	p.cache.Set(key, fresh)
	if fresh != current {
		closeAdapter(current)
	}
}

// Close closes every cached adapter that holds resources.
func (p *ERPProvider) Close() {
	p.cache.Purge()
}

func closeAdapter(a erp.Adapter) {
	if c, ok := a.(io.Closer); ok {
		_ = c.Close()
	}
}

// fingerprint identifies a back-end without exposing its DSN.
func fingerprint(b engine.BackendConfig) string {
	if b.DSN == "" {
		return b.Provider
	}
	sum := sha256.Sum256([]byte(b.DSN))
	return b.Provider + ":" + hex.EncodeToString(sum[:8])
}

var _ engine.ToolProvider = (*ERPProvider)(nil)
