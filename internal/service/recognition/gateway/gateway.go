// Package gateway exposes a uniform streaming interface over the
// interchangeable recognition providers. Opening a stream never fails:
// absence of a working live provider degrades to the simulated backend
// so the calling session is never blocked.
package gateway

import (
	"context"
	"time"

	"live-slide-sync-service/internal/models"
	"live-slide-sync-service/internal/observability/logging"
	"live-slide-sync-service/internal/observability/metrics"
	"live-slide-sync-service/internal/service/recognition"
	googlestt "live-slide-sync-service/internal/service/recognition/google"
	"live-slide-sync-service/internal/service/recognition/simulated"
)

// Config holds gateway settings.
type Config struct {
	// DefaultProvider is used when the caller states no preference.
	DefaultProvider string

	// PendingQueueSize bounds audio chunks buffered before the provider
	// transport is ready. Overflow drops the oldest chunk.
	PendingQueueSize int

	// ReconnectCooldown: a second transport failure inside this window
	// abandons the provider and falls back to the simulated backend.
	ReconnectCooldown time.Duration

	// FragmentBuffer sizes each handle's outbound fragment channel.
	FragmentBuffer int

	// Google carries settings for the live Google provider.
	Google googlestt.Config
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		DefaultProvider:   recognition.ProviderSimulated,
		PendingQueueSize:  64,
		ReconnectCooldown: 30 * time.Second,
		FragmentBuffer:    64,
	}
}

// Factory creates a concrete provider by ID. Injected so tests can
// substitute failing or scripted providers.
type Factory func(ctx context.Context, providerId string) (recognition.Provider, error)

// Gateway opens recognition streams for sessions.
type Gateway struct {
	cfg     Config
	factory Factory
	metrics *metrics.Metrics
}

// New creates a gateway. A nil factory selects the default factory,
// which knows the simulated and Google providers.
func New(cfg Config, factory Factory) *Gateway {
	if cfg.PendingQueueSize <= 0 {
		cfg.PendingQueueSize = DefaultConfig().PendingQueueSize
	}
	if cfg.ReconnectCooldown <= 0 {
		cfg.ReconnectCooldown = DefaultConfig().ReconnectCooldown
	}
	if cfg.FragmentBuffer <= 0 {
		cfg.FragmentBuffer = DefaultConfig().FragmentBuffer
	}
	g := &Gateway{
		cfg:     cfg,
		metrics: metrics.DefaultMetrics,
	}
	if factory == nil {
		factory = g.defaultFactory
	}
	g.factory = factory
	return g
}

// defaultFactory builds real providers. A Google request without
// credentials is served by the simulated backend instead of an error.
func (g *Gateway) defaultFactory(ctx context.Context, providerId string) (recognition.Provider, error) {
	switch providerId {
	case recognition.ProviderGoogle:
		if !googlestt.Available() {
			logger := logging.WithComponent("gateway")
			logger.Warn().Msg("Google provider requested without credentials, using simulated backend")
			return simulated.New(), nil
		}
		return googlestt.New(ctx, g.cfg.Google)
	default:
		return simulated.New(), nil
	}
}

// Resolve selects the provider ID for a session: explicit preference,
// else the configured default, else the simulated backend.
func (g *Gateway) Resolve(preference string) string {
	if preference != "" {
		return preference
	}
	if g.cfg.DefaultProvider != "" {
		return g.cfg.DefaultProvider
	}
	return recognition.ProviderSimulated
}

// Open starts a recognition stream for a session. It never fails; any
// provider construction or start error degrades to the simulated
// backend. The returned handle emits a lazy, unbounded fragment
// sequence until Close.
func (g *Gateway) Open(ctx context.Context, sessionId, preference string) *Handle {
	providerId := g.Resolve(preference)

	h := newHandle(ctx, g, sessionId, providerId)
	go h.start(providerId, false)
	return h
}

// Classifier returns a provider for the one-shot classification that
// feeds the wake trigger. The resolved provider is tried first;
// streaming-only providers answer (nil, nil) per chunk and those chunks
// fall through to the simulated backend, so the wake gate always sees
// transcribed text.
func (g *Gateway) Classifier(ctx context.Context, preference string) recognition.Provider {
	providerId := g.Resolve(preference)
	if providerId == recognition.ProviderSimulated {
		return simulated.New()
	}
	primary, err := g.factory(ctx, providerId)
	if err != nil {
		logger := logging.WithComponent("gateway")
		logger.Warn().Err(err).Str("sttProvider", providerId).
			Msg("Classifier construction failed, using simulated backend")
		return simulated.New()
	}
	return &chunkClassifier{primary: primary, fallback: simulated.New()}
}

// chunkClassifier fronts a preferred provider for one-shot recognition
// with a simulated fallback. No streaming session is opened through it.
type chunkClassifier struct {
	primary  recognition.Provider
	fallback recognition.Provider
}

func (c *chunkClassifier) ID() string { return c.primary.ID() }

func (c *chunkClassifier) Start(ctx context.Context, cb recognition.Callback) error {
	return c.primary.Start(ctx, cb)
}

func (c *chunkClassifier) SendAudio(ctx context.Context, audio []byte) error {
	return c.primary.SendAudio(ctx, audio)
}

func (c *chunkClassifier) TranscribeChunk(ctx context.Context, audio []byte) (*models.TranscriptFragment, error) {
	frag, err := c.primary.TranscribeChunk(ctx, audio)
	if err != nil || frag != nil {
		return frag, err
	}
	return c.fallback.TranscribeChunk(ctx, audio)
}

func (c *chunkClassifier) Close() error {
	c.fallback.Close()
	return c.primary.Close()
}
