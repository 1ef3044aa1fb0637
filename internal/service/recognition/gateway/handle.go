package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"live-slide-sync-service/internal/models"
	"live-slide-sync-service/internal/observability/logging"
	"live-slide-sync-service/internal/service/recognition"
	"live-slide-sync-service/internal/service/recognition/simulated"
)

// ErrHandleClosed is returned by writes to a closed handle.
var ErrHandleClosed = errors.New("recognition handle is closed")

// Handle is the runtime state of one open recognition stream. It
// implements recognition.Callback to receive provider results and
// republishes them as TranscriptFragments.
type Handle struct {
	sessionId string
	gw        *Gateway
	ctx       context.Context
	cancel    context.CancelFunc

	fragments chan models.TranscriptFragment

	mu          sync.Mutex
	provider    recognition.Provider
	providerId  string
	ready       bool
	closed      bool
	degraded    bool
	pending     [][]byte
	lastFailure time.Time
	onDegraded  func(providerId, reason string)
}

func newHandle(ctx context.Context, gw *Gateway, sessionId, providerId string) *Handle {
	hctx, cancel := context.WithCancel(ctx)
	return &Handle{
		sessionId:  sessionId,
		gw:         gw,
		ctx:        hctx,
		cancel:     cancel,
		providerId: providerId,
		fragments:  make(chan models.TranscriptFragment, gw.cfg.FragmentBuffer),
	}
}

// Fragments returns the stream of recognized fragments. The channel is
// closed when the handle is closed; it never ends on its own.
func (h *Handle) Fragments() <-chan models.TranscriptFragment {
	return h.fragments
}

// ProviderID returns the currently active provider.
func (h *Handle) ProviderID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.providerId
}

// Degraded reports whether the handle fell back to the simulated
// backend after provider failure.
func (h *Handle) Degraded() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.degraded
}

// Ready reports whether the underlying transport accepts audio.
func (h *Handle) Ready() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ready
}

// OnDegradedSignal registers the function invoked once when the handle
// falls back to the simulated backend. The session hub uses it to show
// the operator a degraded-mode notice; it is a log-level signal, never
// an error to the caller.
func (h *Handle) OnDegradedSignal(fn func(providerId, reason string)) {
	h.mu.Lock()
	h.onDegraded = fn
	h.mu.Unlock()
}

// Write sends an audio chunk into the stream. Chunks written before the
// transport is ready are buffered (bounded, oldest dropped) and flushed
// in order once ready.
func (h *Handle) Write(ctx context.Context, chunk []byte) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrHandleClosed
	}
	if !h.ready {
		if len(h.pending) >= h.gw.cfg.PendingQueueSize {
			h.pending = h.pending[1:]
			h.gw.metrics.RecordChunkDropped()
		}
		h.pending = append(h.pending, chunk)
		h.gw.metrics.RecordChunkQueued()
		h.mu.Unlock()
		return nil
	}
	provider := h.provider
	h.mu.Unlock()

	return provider.SendAudio(ctx, chunk)
}

// TranscribeChunk performs one-shot recognition via the current
// provider. Streaming-only providers yield (nil, nil).
func (h *Handle) TranscribeChunk(ctx context.Context, chunk []byte) (*models.TranscriptFragment, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHandleClosed
	}
	provider := h.provider
	h.mu.Unlock()

	if provider == nil {
		return nil, nil
	}
	return provider.TranscribeChunk(ctx, chunk)
}

// Close tears the stream down. Immediate and idempotent.
func (h *Handle) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	provider := h.provider
	providerId := h.providerId
	close(h.fragments)
	h.mu.Unlock()

	h.cancel()
	if provider != nil {
		if err := provider.Close(); err != nil {
			logger := logging.WithProvider(h.sessionId, providerId)
			logger.Debug().Err(err).Msg("Provider close error")
		}
	}
}

// start constructs and starts the given provider, then marks the handle
// ready and flushes queued audio. Any failure degrades to the simulated
// backend rather than surfacing to the caller.
func (h *Handle) start(providerId string, isReconnect bool) {
	logger := logging.WithProvider(h.sessionId, providerId)

	provider, err := h.gw.factory(h.ctx, providerId)
	if err != nil {
		logger.Warn().Err(err).Msg("Provider construction failed")
		h.fallbackToSimulated("construction failed: " + err.Error())
		return
	}

	if err := provider.Start(h.ctx, h); err != nil {
		logger.Warn().Err(err).Bool("reconnect", isReconnect).Msg("Provider start failed")
		if isReconnect {
			h.fallbackToSimulated("reconnect failed: " + err.Error())
		} else {
			h.OnError(err)
		}
		return
	}

	h.adopt(provider, providerId)
	logger.Info().Bool("reconnect", isReconnect).Msg("Recognition stream ready")
}

// adopt installs a started provider and flushes the pending queue in
// original order before accepting direct writes.
func (h *Handle) adopt(provider recognition.Provider, providerId string) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		provider.Close()
		return
	}
	old := h.provider
	h.provider = provider
	h.providerId = providerId
	h.mu.Unlock()

	if old != nil && old != provider {
		old.Close()
	}

	// Flush in batches until the queue stays empty, then flip ready so
	// new writes cannot overtake queued chunks.
	for {
		h.mu.Lock()
		if h.closed {
			h.mu.Unlock()
			return
		}
		if len(h.pending) == 0 {
			h.ready = true
			h.mu.Unlock()
			return
		}
		batch := h.pending
		h.pending = nil
		h.mu.Unlock()

		for _, chunk := range batch {
			if err := provider.SendAudio(h.ctx, chunk); err != nil {
				logger := logging.WithProvider(h.sessionId, providerId)
				logger.Warn().Err(err).Msg("Flush of queued audio failed")
				h.OnError(err)
				return
			}
		}
	}
}

// --- recognition.Callback implementation ---

// OnPartial republishes an interim transcript.
func (h *Handle) OnPartial(text string) {
	h.emit(models.TranscriptFragment{
		Text:         text,
		RecognizedAt: time.Now(),
	})
}

// OnFinal republishes a final transcript.
func (h *Handle) OnFinal(text string, confidence float64) {
	h.emit(models.TranscriptFragment{
		Text:         text,
		IsFinal:      true,
		Confidence:   confidence,
		RecognizedAt: time.Now(),
	})
}

func (h *Handle) emit(frag models.TranscriptFragment) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.gw.metrics.RecordFragment(frag.IsFinal)
	select {
	case h.fragments <- frag:
	default:
		// Slow consumer; fragments are ephemeral, dropping is safe.
	}
}

// OnError handles a transport failure: one automatic reconnect attempt
// with the same provider, then fallback to the simulated backend when
// failures repeat within the cooldown window.
func (h *Handle) OnError(err error) {
	h.mu.Lock()
	if h.closed || h.degraded {
		h.mu.Unlock()
		return
	}
	now := time.Now()
	withinCooldown := !h.lastFailure.IsZero() && now.Sub(h.lastFailure) < h.gw.cfg.ReconnectCooldown
	h.lastFailure = now
	h.ready = false
	providerId := h.providerId
	h.mu.Unlock()

	logger := logging.WithProvider(h.sessionId, providerId)

	if withinCooldown {
		h.fallbackToSimulated("repeated transport failure: " + err.Error())
		return
	}

	logger.Warn().Err(err).Msg("Transport error, attempting reconnect")
	h.gw.metrics.RecordReconnect(providerId)
	go h.start(providerId, true)
}

// fallbackToSimulated swaps the failed provider for the simulated
// backend and raises the degraded-mode signal. Logged, never raised.
func (h *Handle) fallbackToSimulated(reason string) {
	h.mu.Lock()
	if h.closed || h.degraded {
		h.mu.Unlock()
		return
	}
	h.degraded = true
	from := h.providerId
	onDegraded := h.onDegraded
	h.mu.Unlock()

	h.gw.metrics.RecordFallback(from)
	logger := logging.WithProvider(h.sessionId, from)
	logger.Warn().
		Str("reason", reason).
		Msg("Falling back to simulated recognition backend")

	sim := simulated.New()
	if err := sim.Start(h.ctx, h); err != nil {
		// The simulated backend's Start cannot fail today; guard anyway.
		simLogger := logging.WithProvider(h.sessionId, recognition.ProviderSimulated)
		simLogger.Error().Err(err).Msg("Simulated backend start failed")
		return
	}
	h.adopt(sim, recognition.ProviderSimulated)

	if onDegraded != nil {
		onDegraded(from, reason)
	}
}
