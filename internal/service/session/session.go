// Package session implements the authoritative per-event state machine:
// it owns the slide position, the setlist snapshot, and the viewer
// registry, and serializes every mutation through a single loop per
// session so decisions, operator commands, and registrations never
// interleave mid-mutation.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"live-slide-sync-service/internal/events"
	"live-slide-sync-service/internal/models"
	"live-slide-sync-service/internal/observability/logging"
	"live-slide-sync-service/internal/observability/metrics"
	"live-slide-sync-service/internal/protocol"
	"live-slide-sync-service/internal/service/match"
	"live-slide-sync-service/internal/service/recognition"
	"live-slide-sync-service/internal/service/recognition/gateway"
	"live-slide-sync-service/internal/service/wake"
	"live-slide-sync-service/internal/setlist"
)

// Config holds per-session settings.
type Config struct {
	ViewerQueueSize    int
	HeartbeatTimeout   time.Duration
	IdleTimeout        time.Duration
	SweepInterval      time.Duration
	ProviderPreference string
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		ViewerQueueSize:  32,
		HeartbeatTimeout: 45 * time.Second,
		IdleTimeout:      2 * time.Minute,
		SweepInterval:    5 * time.Second,
	}
}

// Deps are the collaborators a session needs.
type Deps struct {
	Engine    *match.Engine
	Gateway   *gateway.Gateway
	Publisher *events.Publisher

	// Classifier performs the cheap one-shot recognition that feeds the
	// wake trigger before the streaming window opens. Nil disables the
	// wake path; the streaming handle then opens at session start.
	Classifier recognition.Provider
	Wake       wake.Config
}

type command func()

// Session is the authoritative state for one live event. All mutations
// funnel through the command channel and are applied by the run loop in
// arrival order; every applied mutation produces exactly one broadcast.
type Session struct {
	eventID  string
	cfg      Config
	snapshot *setlist.Snapshot
	deps     Deps
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	commands chan command
	done     chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	onEnded  func(eventID string)

	// Owned by the run loop.
	viewers    map[string]*Viewer
	state      State
	revision   uint64
	activeFlat int
	settings   models.EventSettings
	startedAt  time.Time
	emptySince time.Time

	// Recognition plumbing, guarded by recMu: the audio path runs on the
	// connection's read goroutine, not the session loop.
	recMu   sync.Mutex
	handle  *gateway.Handle
	trigger *wake.Trigger

	stateCh chan stateQuery
}

type stateQuery struct {
	reply chan stateView
}

type stateView struct {
	state      State
	revision   uint64
	activeFlat int
	viewers    int
}

func newSession(eventID string, snap *setlist.Snapshot, cfg Config, deps Deps, onEnded func(string)) *Session {
	if cfg.ViewerQueueSize <= 0 {
		cfg.ViewerQueueSize = DefaultConfig().ViewerQueueSize
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = DefaultConfig().HeartbeatTimeout
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultConfig().IdleTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultConfig().SweepInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		eventID:  eventID,
		cfg:      cfg,
		snapshot: snap,
		deps:     deps,
		metrics:  metrics.DefaultMetrics,
		logger:   logging.WithSession(eventID),
		commands: make(chan command, 64),
		done:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
		onEnded:  onEnded,
		viewers:  make(map[string]*Viewer),
		state:    StateConnecting,
		stateCh:  make(chan stateQuery),
	}
	return s
}

// start transitions the session to ACTIVE and begins the run loop. The
// recognition stream opens immediately, or lazily on wake when the wake
// trigger is enabled and a classifier is available.
func (s *Session) start() {
	s.state = StateActive
	s.startedAt = time.Now()
	s.metrics.RecordSessionStart()
	s.logger.Info().Int("slides", s.snapshot.SlideCount()).Msg("Session active")

	go s.run()
	go s.publishLifecycle(events.EventSessionStarted, "")

	if s.deps.Wake.Enabled && s.deps.Classifier != nil {
		s.recMu.Lock()
		s.trigger = wake.New(s.deps.Wake, s.openRecognition)
		s.recMu.Unlock()
	} else {
		s.openRecognition()
	}
}

// EventID returns the event this session serves.
func (s *Session) EventID() string {
	return s.eventID
}

// Done is closed when the session reaches ENDED.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Snapshot returns the immutable setlist snapshot.
func (s *Session) Snapshot() *setlist.Snapshot {
	return s.snapshot
}

func (s *Session) view() stateView {
	q := stateQuery{reply: make(chan stateView, 1)}
	select {
	case s.stateCh <- q:
		return <-q.reply
	case <-s.done:
		return stateView{state: StateEnded}
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return s.view().state
}

// CurrentSlide returns the flattened active slide index.
func (s *Session) CurrentSlide() int {
	return s.view().activeFlat
}

// Revision returns the latest broadcast revision.
func (s *Session) Revision() uint64 {
	return s.view().revision
}

// ViewerCount returns the number of registered viewers.
func (s *Session) ViewerCount() int {
	return s.view().viewers
}

// do enqueues a mutation for the run loop. Returns false once the
// session has ended.
func (s *Session) do(fn command) bool {
	select {
	case s.commands <- fn:
		return true
	case <-s.done:
		return false
	}
}

func (s *Session) run() {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case fn := <-s.commands:
			fn()
		case q := <-s.stateCh:
			q.reply <- stateView{
				state:      s.state,
				revision:   s.revision,
				activeFlat: s.activeFlat,
				viewers:    len(s.viewers),
			}
		case <-ticker.C:
			s.sweep()
		}
	}
}

// RegisterViewer adds a connection to the registry. The viewer's first
// frame is always the full session state, regardless of how many
// mutations have already been applied.
func (s *Session) RegisterViewer(connectionId string, role models.ViewerRole) (*Viewer, error) {
	reply := make(chan *Viewer, 1)
	ok := s.do(func() {
		v := newViewer(connectionId, role, s.cfg.ViewerQueueSize)
		s.viewers[connectionId] = v
		s.emptySince = time.Time{}
		s.metrics.RecordViewerConnected(string(role))
		s.sendTo(v, s.fullState())
		s.logger.Info().Str("connectionId", connectionId).Str("role", string(role)).Msg("Viewer registered")
		reply <- v
	})
	if !ok {
		return nil, ErrSessionEnded
	}
	select {
	case v := <-reply:
		return v, nil
	case <-s.done:
		return nil, ErrSessionEnded
	}
}

// UnregisterViewer removes a connection. The session survives with zero
// viewers until the idle timeout.
func (s *Session) UnregisterViewer(connectionId string) {
	s.do(func() {
		s.removeViewer(connectionId)
	})
}

// Heartbeat refreshes a viewer's liveness.
func (s *Session) Heartbeat(connectionId string) {
	s.do(func() {
		if v, ok := s.viewers[connectionId]; ok {
			v.lastSeen = time.Now()
		}
	})
}

// Next applies an operator advance. Clamped at the last slide.
func (s *Session) Next() {
	s.do(func() { s.applyOperatorMove(1) })
}

// Prev applies an operator retreat. Clamped at the first slide.
func (s *Session) Prev() {
	s.do(func() { s.applyOperatorMove(-1) })
}

// UpdateSettings applies an operator display-settings change.
func (s *Session) UpdateSettings(settings models.EventSettings) {
	s.do(func() {
		s.settings = settings
		s.revision++
		s.broadcast(protocol.TypeEventSettingsUpdated, protocol.EventSettingsUpdated{
			Type:     protocol.TypeEventSettingsUpdated,
			Revision: s.revision,
			Settings: settings,
		})
	})
}

// ApplyDecision feeds a match engine decision into the mutation path.
// Only an ADVANCE targeting the slide directly after the current one is
// applied; stale or duplicate targets are ignored, so replaying the same
// decision produces a single transition.
func (s *Session) ApplyDecision(d models.MatchDecision) {
	if d.Action != models.ActionAdvance {
		return
	}
	s.do(func() {
		s.applyDecision(d)
	})
}

// End transitions the session to ENDED, notifies viewers, and releases
// the recognition handle.
func (s *Session) End(reason string) {
	s.do(func() {
		s.end(reason)
	})
}

// WriteAudio feeds one audio chunk into the recognition pipeline. Before
// the wake trigger fires, chunks go through cheap one-shot
// classification; after it fires (or when wake is disabled), they stream
// to the open provider handle.
func (s *Session) WriteAudio(ctx context.Context, chunk []byte) error {
	s.metrics.RecordAudioReceived(len(chunk))

	h, trigger, classifier := s.recognitionState()
	if h != nil {
		return h.Write(ctx, chunk)
	}
	if trigger == nil || classifier == nil {
		return nil
	}

	frag, err := classifier.TranscribeChunk(ctx, chunk)
	if err != nil || frag == nil {
		return err
	}
	trigger.Observe(frag.Text)
	return nil
}

func (s *Session) recognitionState() (*gateway.Handle, *wake.Trigger, recognition.Provider) {
	s.recMu.Lock()
	defer s.recMu.Unlock()
	return s.handle, s.trigger, s.deps.Classifier
}

// openRecognition opens the streaming recognition handle once and starts
// the fragment pump. Never fails; provider trouble degrades inside the
// gateway.
func (s *Session) openRecognition() {
	s.recMu.Lock()
	if s.handle != nil {
		s.recMu.Unlock()
		return
	}
	h := s.deps.Gateway.Open(s.ctx, s.eventID, s.cfg.ProviderPreference)
	s.handle = h
	s.recMu.Unlock()

	h.OnDegradedSignal(func(provider, reason string) {
		s.notifyDegraded(provider, reason)
	})

	go func() {
		for frag := range h.Fragments() {
			s.handleFragment(frag)
		}
	}()

	s.logger.Info().Str("provider", h.ProviderID()).Msg("Recognition stream opened")
}

// handleFragment mirrors the transcript to operators and runs the match
// engine inside the serialized mutation path.
func (s *Session) handleFragment(frag models.TranscriptFragment) {
	s.do(func() {
		s.broadcastOperators(protocol.Transcript{
			Type:       protocol.TypeTranscript,
			Text:       frag.Text,
			IsFinal:    frag.IsFinal,
			Confidence: frag.Confidence,
		})

		cur := s.activeFlat
		d := s.deps.Engine.Evaluate(
			s.snapshot.Reference(cur),
			s.snapshot.Reference(cur+1),
			cur+1,
			frag,
		)
		if d.Action == models.ActionAdvance {
			s.applyDecision(d)
		}
	})
}

func (s *Session) notifyDegraded(provider, reason string) {
	s.do(func() {
		s.broadcastOperators(protocol.RecognitionDegraded{
			Type:     protocol.TypeRecognitionDegraded,
			Provider: provider,
			Reason:   reason,
		})
	})
	go s.publishLifecycle(events.EventRecognitionDegraded, reason)
}

// --- run-loop internals ---

func (s *Session) applyOperatorMove(delta int) {
	if s.state != StateActive {
		return
	}
	// Manual commands always invalidate in-flight automatic debounce
	// state so a stale decision cannot override this move.
	s.deps.Engine.InvalidateDebounce()

	target := s.snapshot.Clamp(s.activeFlat + delta)
	if target == s.activeFlat {
		return
	}
	s.applyMove(target, "operator", 0)
}

func (s *Session) applyDecision(d models.MatchDecision) {
	if s.state != StateActive {
		return
	}
	// Only the immediate next slide is a valid automatic target; anything
	// else is stale (the slide moved underneath) or a duplicate.
	if d.TargetSlide != s.activeFlat+1 {
		return
	}
	target := s.snapshot.Clamp(d.TargetSlide)
	if target == s.activeFlat {
		return
	}
	s.applyMove(target, "match", d.Score)
}

func (s *Session) applyMove(target int, origin string, score float64) {
	s.activeFlat = target
	s.revision++
	s.deps.Engine.ResetWindow()

	groupIdx, slideIdx, slide := s.snapshot.At(target)
	group := s.snapshot.Groups[groupIdx]
	s.broadcast(protocol.TypeDisplayUpdate, protocol.DisplayUpdate{
		Type:            protocol.TypeDisplayUpdate,
		Revision:        s.revision,
		ActiveItemIndex: groupIdx,
		ActiveSlide:     slideIdx,
		GroupTitle:      group.Title,
		GroupType:       string(group.Type),
		Lines:           slide.Lines,
		MediaRef:        group.MediaRef,
	})

	s.logger.Debug().
		Int("slide", target).
		Str("origin", origin).
		Float64("score", score).
		Msg("Slide transition")

	rev := s.revision
	go s.publishTransition(rev, groupIdx, slideIdx, origin)
}

func (s *Session) removeViewer(connectionId string) {
	v, ok := s.viewers[connectionId]
	if !ok {
		return
	}
	delete(s.viewers, connectionId)
	v.close()
	s.metrics.RecordViewerDisconnected()
	if len(s.viewers) == 0 {
		s.emptySince = time.Now()
	}
	s.logger.Info().Str("connectionId", connectionId).Msg("Viewer unregistered")
}

// sweep enforces heartbeat and idle timeouts.
func (s *Session) sweep() {
	if s.state != StateActive {
		return
	}
	now := time.Now()

	for id, v := range s.viewers {
		if now.Sub(v.lastSeen) > s.cfg.HeartbeatTimeout {
			s.metrics.RecordHeartbeatTimeout()
			s.logger.Warn().Str("connectionId", id).Msg("Viewer heartbeat timed out")
			s.removeViewer(id)
		}
	}

	if len(s.viewers) == 0 {
		if s.emptySince.IsZero() {
			s.emptySince = now
		} else if now.Sub(s.emptySince) > s.cfg.IdleTimeout {
			s.end("idle")
		}
	}
}

func (s *Session) end(reason string) {
	if s.state == StateEnded {
		return
	}
	s.state = StateEnded

	s.broadcast(protocol.TypeSessionEnded, protocol.SessionEnded{
		Type:    protocol.TypeSessionEnded,
		EventID: s.eventID,
		Reason:  reason,
	})
	for id := range s.viewers {
		s.removeViewer(id)
	}

	s.recMu.Lock()
	h := s.handle
	classifier := s.deps.Classifier
	s.recMu.Unlock()
	if h != nil {
		h.Close()
	}
	if classifier != nil {
		if err := classifier.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("Classifier close error")
		}
	}
	s.cancel()

	s.metrics.RecordSessionEnd(reason, time.Since(s.startedAt).Seconds())
	s.logger.Info().Str("reason", reason).Msg("Session ended")
	go s.publishLifecycle(events.EventSessionEnded, reason)

	// done closes before the hub callback: the hub reads State under its
	// own lock, and the callback blocks on that same lock.
	close(s.done)
	if s.onEnded != nil {
		s.onEnded(s.eventID)
	}
}

// --- broadcast helpers (run loop only) ---

func (s *Session) broadcast(kind string, msg any) {
	data, err := protocol.Encode(msg)
	if err != nil {
		s.logger.Error().Err(err).Str("kind", kind).Msg("Broadcast encode failed")
		return
	}
	for _, v := range s.viewers {
		v.send(data, s.metrics)
	}
	s.metrics.RecordBroadcast(kind, len(s.viewers))
}

func (s *Session) broadcastOperators(msg any) {
	data, err := protocol.Encode(msg)
	if err != nil {
		s.logger.Error().Err(err).Msg("Broadcast encode failed")
		return
	}
	for _, v := range s.viewers {
		if v.Role == models.RoleOperator {
			v.send(data, s.metrics)
		}
	}
}

func (s *Session) sendTo(v *Viewer, msg any) {
	data, err := protocol.Encode(msg)
	if err != nil {
		s.logger.Error().Err(err).Msg("Send encode failed")
		return
	}
	v.send(data, s.metrics)
}

func (s *Session) fullState() protocol.SessionStarted {
	groupIdx, slideIdx, _ := s.snapshot.At(s.activeFlat)
	return protocol.SessionStarted{
		Type:            protocol.TypeSessionStarted,
		EventID:         s.eventID,
		Revision:        s.revision,
		ActiveItemIndex: groupIdx,
		ActiveSlide:     slideIdx,
		Setlist:         s.snapshot.Groups,
		Settings:        s.settings,
	}
}

// --- event feed ---

func (s *Session) publishTransition(revision uint64, itemIdx, slideIdx int, origin string) {
	err := s.deps.Publisher.PublishTransition(context.Background(), events.SessionEvent{
		EventType:  events.EventSlideTransition,
		EventID:    s.eventID,
		Revision:   revision,
		ItemIndex:  itemIdx,
		SlideIndex: slideIdx,
		Origin:     origin,
		Timestamp:  time.Now().UnixMilli(),
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("Transition event publish failed")
	}
}

func (s *Session) publishLifecycle(eventType, detail string) {
	err := s.deps.Publisher.PublishLifecycle(context.Background(), events.SessionEvent{
		EventType: eventType,
		EventID:   s.eventID,
		Detail:    detail,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("Lifecycle event publish failed")
	}
}
