// Package wake provides the always-on phrase classifier that opens a
// recognition window only when speech plausibly references scripture.
// It keeps continuous full recognition from running (and being billed)
// between cues.
package wake

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"live-slide-sync-service/internal/observability/logging"
	"live-slide-sync-service/internal/observability/metrics"
	"live-slide-sync-service/internal/service/match"
)

// referencePattern matches explicit "<book> <chapter>:<verse>" phrasing,
// checked against the raw lowercased text so the colon stays structural.
var referencePattern = regexp.MustCompile(`\b[a-z]+ \d{1,3}:\d{1,3}\b`)

// chapterVersePattern matches a short chapter/verse pair in normalized
// text: "3 16" (from "3:16") or the spoken "3 verse 16".
var chapterVersePattern = regexp.MustCompile(`\b\d{1,3}(?: verse)? \d{1,3}\b`)

// cuePhrases are spoken leads that, combined with a chapter/verse pair,
// count as a scripture reference.
var cuePhrases = []string{
	"turn to",
	"turn with me",
	"let's read",
	"open your bibles",
	"chapter",
	"verse",
}

// Config holds wake trigger settings.
type Config struct {
	Enabled   bool
	Cooldown  time.Duration
	MinTokens int
}

// DefaultConfig returns the standard trigger tuning.
func DefaultConfig() Config {
	return Config{
		Enabled:   true,
		Cooldown:  3 * time.Second,
		MinTokens: 3,
	}
}

// Trigger classifies candidate phrases and fires a callback at most once
// per cooldown window. Safe for concurrent use.
type Trigger struct {
	cfg    Config
	onWake func()

	mu        sync.Mutex
	lastFired time.Time

	metrics *metrics.Metrics
	now     func() time.Time
}

// New creates a wake trigger. onWake is expected to open a recognition
// stream; it runs synchronously on the observing goroutine.
func New(cfg Config, onWake func()) *Trigger {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultConfig().Cooldown
	}
	if cfg.MinTokens <= 0 {
		cfg.MinTokens = DefaultConfig().MinTokens
	}
	return &Trigger{
		cfg:     cfg,
		onWake:  onWake,
		metrics: metrics.DefaultMetrics,
		now:     time.Now,
	}
}

// Enabled reports whether the trigger is active.
func (t *Trigger) Enabled() bool {
	return t.cfg.Enabled
}

// Observe classifies one phrase. Returns true when the wake fired.
// Single keyword hits never trigger; the phrase needs the minimum token
// count plus either a structural reference or a cue phrase together
// with a short chapter/verse pair.
func (t *Trigger) Observe(text string) bool {
	if !t.cfg.Enabled {
		return false
	}

	normalized := match.Normalize(text)
	if !t.classify(strings.ToLower(text), normalized) {
		return false
	}

	t.mu.Lock()
	now := t.now()
	if now.Sub(t.lastFired) < t.cfg.Cooldown {
		t.mu.Unlock()
		t.metrics.RecordWakeSuppressed()
		return false
	}
	t.lastFired = now
	t.mu.Unlock()

	t.metrics.RecordWake()
	logger := logging.WithComponent("wake")
	logger.Info().Str("phrase", normalized).Msg("Wake trigger fired")

	if t.onWake != nil {
		t.onWake()
	}
	return true
}

func (t *Trigger) classify(raw, normalized string) bool {
	tokens := strings.Fields(normalized)
	if len(tokens) < t.cfg.MinTokens {
		return false
	}

	if referencePattern.MatchString(raw) {
		return true
	}

	if !chapterVersePattern.MatchString(normalized) {
		return false
	}
	for _, cue := range cuePhrases {
		if strings.Contains(normalized, cue) {
			return true
		}
	}
	return false
}
