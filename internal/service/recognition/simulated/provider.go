// Package simulated provides a deterministic recognition backend used
// when no live provider is configured or credentials are absent. It
// cycles a fixed phrase set on a timer, alternating partial and final
// fragments so consumers exercise the same code path as with live
// providers.
package simulated

import (
	"context"
	"sync"
	"time"

	"live-slide-sync-service/internal/models"
	"live-slide-sync-service/internal/service/recognition"
)

// Phrase is one simulated utterance with progressive partials.
type Phrase struct {
	Partials   []string
	Final      string
	Confidence float64 // always within [0.85, 0.99]
}

// DefaultPhrases cycles through typical service speech.
var DefaultPhrases = []Phrase{
	{
		Partials:   []string{"amazing grace", "amazing grace how sweet"},
		Final:      "amazing grace how sweet the sound",
		Confidence: 0.94,
	},
	{
		Partials:   []string{"that saved a", "that saved a wretch"},
		Final:      "that saved a wretch like me",
		Confidence: 0.91,
	},
	{
		Partials:   []string{"turn with me to", "turn with me to john"},
		Final:      "turn with me to john chapter 3 verse 16",
		Confidence: 0.97,
	},
	{
		Partials:   []string{"for god so loved", "for god so loved the world"},
		Final:      "for god so loved the world that he gave his only son",
		Confidence: 0.98,
	},
	{
		Partials:   []string{"twas grace that taught"},
		Final:      "twas grace that taught my heart to fear",
		Confidence: 0.89,
	},
}

// DefaultEmitInterval is the timer period between emitted fragments.
const DefaultEmitInterval = 400 * time.Millisecond

// Provider implements recognition.Provider with deterministic output.
type Provider struct {
	mu           sync.Mutex
	cb           recognition.Callback
	phrases      []Phrase
	emitInterval time.Duration
	phraseIdx    int
	partialIdx   int
	chunkIdx     int
	started      bool
	closed       bool
	stop         chan struct{}
}

// Option tunes a simulated provider.
type Option func(*Provider)

// WithPhrases overrides the phrase set.
func WithPhrases(phrases []Phrase) Option {
	return func(p *Provider) {
		if len(phrases) > 0 {
			p.phrases = phrases
		}
	}
}

// WithEmitInterval overrides the emission timer period.
func WithEmitInterval(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.emitInterval = d
		}
	}
}

// New creates a simulated provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		phrases:      DefaultPhrases,
		emitInterval: DefaultEmitInterval,
		stop:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ID implements recognition.Provider.
func (p *Provider) ID() string { return "simulated" }

// Start begins emitting fragments on a timer until Close.
func (p *Provider) Start(ctx context.Context, cb recognition.Callback) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	if p.started {
		return nil
	}
	p.cb = cb
	p.started = true

	go p.run(ctx)
	return nil
}

func (p *Provider) run(ctx context.Context) {
	ticker := time.NewTicker(p.emitInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case <-ticker.C:
			p.emitNext()
		}
	}
}

// emitNext produces the next fragment in the cycle: each phrase's
// partials in order, then its final, then the next phrase.
func (p *Provider) emitNext() {
	p.mu.Lock()
	if p.closed || p.cb == nil {
		p.mu.Unlock()
		return
	}

	phrase := p.phrases[p.phraseIdx%len(p.phrases)]
	var (
		text    string
		isFinal bool
		conf    float64
	)
	if p.partialIdx < len(phrase.Partials) {
		text = phrase.Partials[p.partialIdx]
		p.partialIdx++
	} else {
		text = phrase.Final
		conf = phrase.Confidence
		isFinal = true
		p.partialIdx = 0
		p.phraseIdx++
	}
	cb := p.cb
	p.mu.Unlock()

	if isFinal {
		cb.OnFinal(text, conf)
	} else {
		cb.OnPartial(text)
	}
}

// SendAudio accepts and discards audio; the simulated stream is
// timer-driven.
func (p *Provider) SendAudio(_ context.Context, _ []byte) error {
	return nil
}

// TranscribeChunk returns the next phrase final as a one-shot result.
// Deterministic: chunk N maps to phrase N mod len(phrases).
func (p *Provider) TranscribeChunk(_ context.Context, _ []byte) (*models.TranscriptFragment, error) {
	p.mu.Lock()
	phrase := p.phrases[p.chunkIdx%len(p.phrases)]
	p.chunkIdx++
	p.mu.Unlock()

	return &models.TranscriptFragment{
		Text:         phrase.Final,
		IsFinal:      true,
		Confidence:   phrase.Confidence,
		RecognizedAt: time.Now(),
	}, nil
}

// Close ends the stream. Idempotent.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	close(p.stop)
	return nil
}
