// Package match scores recognized speech against slide reference text
// and decides when the active slide should advance.
package match

import (
	"sync"

	"live-slide-sync-service/internal/models"
	"live-slide-sync-service/internal/observability/metrics"
)

// Config holds match engine tuning.
type Config struct {
	ConfidenceThreshold float64 // next-slide score required to advance
	AdvanceMargin       float64 // required lead over the current-slide score
	WindowWords         int     // rolling window size in words
}

// DefaultConfig returns the tuning used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: 0.62,
		AdvanceMargin:       0.15,
		WindowWords:         24,
	}
}

// compareWords bounds how much slide reference text is scored against
// the window: the tail of the current slide and the head of the next.
const compareWords = 12

// Engine consumes transcript fragments and produces match decisions.
// One engine serves one session; Evaluate is safe for concurrent use
// though the hub serializes calls in practice.
type Engine struct {
	cfg    Config
	scorer Scorer
	window *Window

	mu sync.Mutex
	// lastAdvanceTarget debounces duplicate advances: once an ADVANCE is
	// emitted for a target, later fragments cannot re-trigger it.
	lastAdvanceTarget int

	metrics *metrics.Metrics
}

// NewEngine creates a match engine with the given tuning and scoring
// strategy. A nil scorer selects the default OverlapScorer.
func NewEngine(cfg Config, scorer Scorer) *Engine {
	if cfg.WindowWords <= 0 {
		cfg = DefaultConfig()
	}
	if scorer == nil {
		scorer = OverlapScorer{}
	}
	return &Engine{
		cfg:               cfg,
		scorer:            scorer,
		window:            NewWindow(cfg.WindowWords),
		lastAdvanceTarget: -1,
		metrics:           metrics.DefaultMetrics,
	}
}

// Evaluate scores a fragment against the current slide's reference tail
// and the next slide's reference head. currentRef and nextRef are the
// normalized reference texts; targetSlide is the flattened index the
// session would advance to. An empty nextRef (end of setlist, or a
// non-matchable slide) always holds.
//
// RETREAT is never produced here; it is operator-only.
func (e *Engine) Evaluate(currentRef, nextRef string, targetSlide int, frag models.TranscriptFragment) models.MatchDecision {
	if frag.IsFinal {
		e.window.Append(frag.Text)
	}

	hold := models.MatchDecision{Action: models.ActionHold, TargetSlide: targetSlide}

	if nextRef == "" {
		return hold
	}

	windowWords := e.window.Words()
	if len(windowWords) == 0 {
		return hold
	}

	currScore := e.scorer.Score(windowWords, tailWords(Tokens(currentRef), compareWords))
	nextScore := e.scorer.Score(windowWords, headWords(Tokens(nextRef), compareWords))

	if nextScore < e.cfg.ConfidenceThreshold || nextScore-currScore < e.cfg.AdvanceMargin {
		e.metrics.RecordDecision(models.ActionHold.String(), nextScore)
		return models.MatchDecision{Action: models.ActionHold, TargetSlide: targetSlide, Score: nextScore}
	}

	e.mu.Lock()
	debounced := e.lastAdvanceTarget == targetSlide
	if !debounced {
		e.lastAdvanceTarget = targetSlide
	}
	e.mu.Unlock()

	if debounced {
		e.metrics.RecordDebounced()
		return models.MatchDecision{Action: models.ActionHold, TargetSlide: targetSlide, Score: nextScore}
	}

	e.metrics.RecordDecision(models.ActionAdvance.String(), nextScore)
	return models.MatchDecision{Action: models.ActionAdvance, TargetSlide: targetSlide, Score: nextScore}
}

// InvalidateDebounce clears in-flight debounce state. The hub calls this
// on every operator command so a stale automatic decision cannot
// override a manual move.
func (e *Engine) InvalidateDebounce() {
	e.mu.Lock()
	e.lastAdvanceTarget = -1
	e.mu.Unlock()
}

// ResetWindow clears the rolling transcript window. Called after a
// slide transition is applied so old words do not immediately score
// against the next boundary.
func (e *Engine) ResetWindow() {
	e.window.Reset()
}
