package socialshare

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Seann-Moser/socialshare/events"
	"github.com/Seann-Moser/socialshare/oauth"
	"github.com/Seann-Moser/socialshare/platform"
	"github.com/Seann-Moser/socialshare/ratelimit"
	"github.com/Seann-Moser/socialshare/session"
	"github.com/Seann-Moser/socialshare/share"
	"github.com/Seann-Moser/socialshare/tokenstore"
)

// Config aggregates the per-component configuration. Client credentials,
// redirect URI, scopes, and limits come from the caller's config source.
type Config struct {
	OAuth     oauth.Config
	Platform  platform.Endpoints
	RateLimit ratelimit.Config
	Share     share.Config
}

// Service is one wired instance of the platform integration: login flow,
// session cache, rate limiter, and posting pipeline sharing one event bus.
// No hidden global state, tests can instantiate isolated copies.
type Service struct {
	Bus      *events.Bus
	Flow     *oauth.Flow
	Sessions *session.Manager
	Limiter  ratelimit.Limiter
	Pipeline *share.Pipeline
}

// New wires a Service on caller-supplied storage backends.
func New(cfg Config, tokens tokenstore.Store, states oauth.StateStore, limiter ratelimit.Limiter) *Service {
	bus := events.NewBus()
	clients := platform.NewFactory(cfg.Platform, nil)
	provider := oauth.NewHTTPProvider(cfg.OAuth, nil)
	flow := oauth.NewFlow(cfg.OAuth, states, tokens, provider, clients, bus)
	sessions := session.NewManager(tokens, flow, clients)
	return &Service{
		Bus:      bus,
		Flow:     flow,
		Sessions: sessions,
		Limiter:  limiter,
		Pipeline: share.NewPipeline(sessions, limiter, bus, cfg.Share),
	}
}

// NewRedis wires a Service with all three Redis-backed stores on one client.
// The encryption key must be exactly 32 bytes.
func NewRedis(cfg Config, client redis.UniversalClient, encryptionKey []byte) (*Service, error) {
	tokens, err := tokenstore.NewRedisStore(client, encryptionKey)
	if err != nil {
		return nil, err
	}
	states := oauth.NewRedisStateStore(client)
	limiter := ratelimit.NewRedisLimiter(client, cfg.RateLimit)
	return New(cfg, tokens, states, limiter), nil
}

// NewMemory wires a fully in-process Service, useful for tests and local
// development without Redis. The encryption key must be exactly 32 bytes.
func NewMemory(cfg Config, encryptionKey []byte) (*Service, error) {
	tokens, err := tokenstore.NewMemoryStore(encryptionKey)
	if err != nil {
		return nil, err
	}
	states := oauth.NewMemoryStateStore()
	limiter := ratelimit.NewMemoryLimiter(cfg.RateLimit)
	return New(cfg, tokens, states, limiter), nil
}

// Start launches the background PKCE sweeper until ctx is done.
func (s *Service) Start(ctx context.Context) {
	s.Flow.StartSweeper(ctx, time.Minute)
}
