package authcore

import (
	"context"
	"errors"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/repensar/authcore/audit"
	"github.com/repensar/authcore/blacklist"
	"github.com/repensar/authcore/ratelimit"
	"github.com/repensar/authcore/token"
)

// Builder assembles a [Service]. Configure, then call Build exactly once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	verifier  CredentialVerifier
	auditSink audit.Sink

	built bool
}

// New starts a Builder with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis injects a Redis client for the shared backends, taking
// precedence over Config.Redis.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithCredentialVerifier sets the identity backend. Required.
func (b *Builder) WithCredentialVerifier(v CredentialVerifier) *Builder {
	b.verifier = v
	return b
}

// WithAuditSink adds an extra sink fed by the async dispatcher, alongside
// the built-in queryable history.
func (b *Builder) WithAuditSink(sink audit.Sink) *Builder {
	b.auditSink = sink
	return b
}

// Build validates the configuration, selects backends, and returns the
// Service. A reachable Redis (probed once, bounded by
// Security.StoreTimeout) gives shared state across instances; otherwise
// everything runs on in-process backends with reduced guarantees, and the
// degradation is logged.
func (b *Builder) Build() (*Service, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if cfg.RateLimit.Profiles == nil {
		cfg.RateLimit.Profiles = ratelimit.DefaultProfiles()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.verifier == nil {
		return nil, errors.New("credential verifier required")
	}

	client := b.probeRedis(cfg)

	svc := &Service{
		config:   cfg,
		verifier: b.verifier,
	}

	// -------- BLACKLIST STORE --------
	if client != nil {
		svc.store = blacklist.NewRedis(client, cfg.Blacklist.RedisPrefix)
	} else {
		mem := blacklist.NewMemory()
		if cfg.Blacklist.SweepSchedule != "" {
			if err := mem.StartSweeper(cfg.Blacklist.SweepSchedule); err != nil {
				return nil, err
			}
		}
		svc.store = mem
		svc.memoryStore = mem
	}

	// -------- RATE LIMITER --------
	var err error
	if client != nil {
		svc.limiter, err = ratelimit.NewRedis(client, cfg.RateLimit.Profiles, cfg.Blacklist.RedisPrefix)
	} else {
		svc.limiter, err = ratelimit.NewMemory(cfg.RateLimit.Profiles)
	}
	if err != nil {
		return nil, err
	}

	// -------- AUDIT PIPELINE --------
	if cfg.Audit.Enabled && cfg.Audit.HistorySize > 0 {
		if client != nil {
			svc.history, err = audit.NewRedis(client, cfg.Blacklist.RedisPrefix, cfg.Audit.HistorySize)
			if err != nil {
				return nil, err
			}
		} else {
			svc.history = audit.NewMemory(cfg.Audit.HistorySize)
		}
	}
	var sink audit.Sink
	switch {
	case svc.history != nil && b.auditSink != nil:
		sink = audit.MultiSink{audit.NewHistorySink(svc.history), b.auditSink}
	case svc.history != nil:
		sink = audit.NewHistorySink(svc.history)
	default:
		sink = b.auditSink
	}
	svc.dispatcher = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, sink)

	// -------- TOKEN CORE --------
	codec, err := token.NewCodec(token.CodecConfig{
		SigningKey: cfg.JWT.SigningKey,
		Issuer:     cfg.JWT.Issuer,
	})
	if err != nil {
		return nil, err
	}
	svc.tokens, err = token.NewManager(codec, svc.store, token.ManagerConfig{
		AccessTTL:              cfg.JWT.AccessTTL,
		RefreshTTL:             cfg.JWT.RefreshTTL,
		FailOpen:               cfg.Security.FailOpen,
		CheckFamilyOnAuthorize: cfg.Security.RevokeAccessOnFamilyRevocation,
	})
	if err != nil {
		return nil, err
	}

	b.built = true

	return svc, nil
}

// probeRedis returns a usable client or nil. An injected client that fails
// its ping, or a configured address that is unreachable, degrades to the
// in-process backends rather than failing construction.
func (b *Builder) probeRedis(cfg Config) redis.UniversalClient {
	client := b.redis
	if client == nil && cfg.Redis.Addr != "" {
		client = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	if client == nil {
		log.Printf("authcore: no redis configured, using in-process backends; state is instance-local")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Security.StoreTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("authcore: redis unreachable, falling back to in-process backends: %v", err)
		return nil
	}
	return client
}
