package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"live-slide-sync-service/internal/events"
	"live-slide-sync-service/internal/models"
	"live-slide-sync-service/internal/protocol"
	"live-slide-sync-service/internal/service/match"
	"live-slide-sync-service/internal/service/recognition/gateway"
	"live-slide-sync-service/internal/service/wake"
	"live-slide-sync-service/internal/setlist"
)

func testEntries(slides int) []models.SetlistEntry {
	blocks := make([][]string, slides)
	for i := range blocks {
		blocks[i] = []string{string(rune('a'+i)) + " line"}
	}
	return []models.SetlistEntry{{
		Type:         models.EntrySong,
		Title:        "Test Song",
		DisplayLines: blocks,
	}}
}

// newTestHub builds a hub with the wake trigger enabled (so no streaming
// recognition opens on its own) and a log-only event feed.
func newTestHub(entries []models.SetlistEntry, mutate func(*HubOptions)) *Hub {
	opts := HubOptions{
		Session:   Config{SweepInterval: 10 * time.Millisecond},
		Match:     match.DefaultConfig(),
		Wake:      wake.Config{Enabled: true, Cooldown: time.Hour, MinTokens: 3},
		Source:    setlist.StaticSource{Entries: entries},
		Gateway:   gateway.New(gateway.DefaultConfig(), nil),
		Publisher: events.New(nil),
	}
	if mutate != nil {
		mutate(&opts)
	}
	return NewHub(opts)
}

func startSession(t *testing.T, h *Hub, eventId string) *Session {
	t.Helper()
	s, err := h.StartSession(context.Background(), eventId)
	if err != nil {
		t.Fatalf("StartSession = %v", err)
	}
	t.Cleanup(func() { s.End("test") })
	return s
}

func nextFrame(t *testing.T, v *Viewer) map[string]any {
	t.Helper()
	select {
	case data, ok := <-v.Outbound():
		if !ok {
			t.Fatal("outbound channel closed")
		}
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("frame decode: %v", err)
		}
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestOperatorCommandsClampAtBounds(t *testing.T) {
	h := newTestHub(testEntries(2), nil)
	s := startSession(t, h, "evt-1")

	for i := 0; i < 5; i++ {
		s.Next()
	}
	waitUntil(t, "advance to last slide", func() bool { return s.CurrentSlide() == 1 })

	for i := 0; i < 7; i++ {
		s.Prev()
	}
	waitUntil(t, "retreat to first slide", func() bool { return s.CurrentSlide() == 0 })

	// Clamped no-ops are not mutations: only the two real moves count.
	if rev := s.Revision(); rev != 2 {
		t.Errorf("revision = %d, want 2", rev)
	}
}

func TestNewViewerFirstFrameIsFullState(t *testing.T) {
	h := newTestHub(testEntries(5), nil)
	s := startSession(t, h, "evt-1")

	s.Next()
	s.Next()
	s.Next()
	waitUntil(t, "slide 3", func() bool { return s.CurrentSlide() == 3 })

	v, err := s.RegisterViewer("conn-1", models.RoleProjector)
	if err != nil {
		t.Fatalf("RegisterViewer = %v", err)
	}

	frame := nextFrame(t, v)
	if frame["type"] != protocol.TypeSessionStarted {
		t.Fatalf("first frame type = %v, want %s", frame["type"], protocol.TypeSessionStarted)
	}
	if got := int(frame["activeSlideIndex"].(float64)); got != 3 {
		t.Errorf("activeSlideIndex = %d, want 3", got)
	}
	if got := frame["eventId"]; got != "evt-1" {
		t.Errorf("eventId = %v", got)
	}
	if _, ok := frame["setlist"]; !ok {
		t.Error("full state frame missing setlist snapshot")
	}
}

func TestDuplicateDecisionProducesOneTransition(t *testing.T) {
	h := newTestHub(testEntries(5), nil)
	s := startSession(t, h, "evt-1")

	v, err := s.RegisterViewer("conn-1", models.RoleProjector)
	if err != nil {
		t.Fatalf("RegisterViewer = %v", err)
	}
	if frame := nextFrame(t, v); frame["type"] != protocol.TypeSessionStarted {
		t.Fatalf("unexpected first frame %v", frame["type"])
	}

	d := models.MatchDecision{Action: models.ActionAdvance, TargetSlide: 1, Score: 0.9}
	s.ApplyDecision(d)
	s.ApplyDecision(d)
	waitUntil(t, "slide 1", func() bool { return s.CurrentSlide() == 1 })

	frame := nextFrame(t, v)
	if frame["type"] != protocol.TypeDisplayUpdate {
		t.Fatalf("frame type = %v, want %s", frame["type"], protocol.TypeDisplayUpdate)
	}
	if got := int(frame["activeSlideIndex"].(float64)); got != 1 {
		t.Errorf("activeSlideIndex = %d, want 1", got)
	}

	// No second transition may arrive for the duplicate decision.
	select {
	case data, ok := <-v.Outbound():
		if ok {
			t.Fatalf("unexpected extra frame: %s", data)
		}
	case <-time.After(100 * time.Millisecond):
	}
	if rev := s.Revision(); rev != 1 {
		t.Errorf("revision = %d, want 1", rev)
	}
}

func TestReconnectingViewerObservesCurrentIndex(t *testing.T) {
	h := newTestHub(testEntries(6), nil)
	s := startSession(t, h, "evt-1")

	const k = 4
	for i := 0; i < k; i++ {
		s.Next()
	}
	waitUntil(t, "slide k", func() bool { return s.CurrentSlide() == k })

	v, err := s.RegisterViewer("conn-late", models.RoleProjector)
	if err != nil {
		t.Fatalf("RegisterViewer = %v", err)
	}
	frame := nextFrame(t, v)
	if got := int(frame["activeSlideIndex"].(float64)); got != k {
		t.Errorf("late viewer observed index %d, want %d", got, k)
	}
}

func TestOperatorCommandTakesPrecedenceOverInFlightDecision(t *testing.T) {
	h := newTestHub(testEntries(5), nil)
	s := startSession(t, h, "evt-1")

	s.Next()
	waitUntil(t, "slide 1", func() bool { return s.CurrentSlide() == 1 })

	// An automatic ADVANCE for the 1->2 boundary is in flight while the
	// operator moves back; the hub serializes them in arrival order and
	// the stale decision no longer applies to the moved slide.
	s.Prev()
	s.ApplyDecision(models.MatchDecision{Action: models.ActionAdvance, TargetSlide: 2, Score: 0.88})

	waitUntil(t, "slide 0", func() bool { return s.CurrentSlide() == 0 })
	time.Sleep(50 * time.Millisecond)
	if got := s.CurrentSlide(); got != 0 {
		t.Errorf("final slide = %d, want 0 (operator precedence)", got)
	}
}

func TestSlowViewerQueueDropsOldest(t *testing.T) {
	h := newTestHub(testEntries(6), func(o *HubOptions) {
		o.Session.ViewerQueueSize = 2
		o.Session.SweepInterval = 10 * time.Millisecond
	})
	s := startSession(t, h, "evt-1")

	v, err := s.RegisterViewer("conn-slow", models.RoleProjector)
	if err != nil {
		t.Fatalf("RegisterViewer = %v", err)
	}

	for i := 0; i < 4; i++ {
		s.Next()
	}
	waitUntil(t, "all moves applied", func() bool { return s.Revision() == 4 })

	// Queue capacity 2: the full-state frame and early updates were
	// pushed out; the two newest revisions survive.
	first := nextFrame(t, v)
	second := nextFrame(t, v)
	if got := uint64(first["revision"].(float64)); got != 3 {
		t.Errorf("first surviving revision = %d, want 3", got)
	}
	if got := uint64(second["revision"].(float64)); got != 4 {
		t.Errorf("second surviving revision = %d, want 4", got)
	}
}

func TestTranscriptMirroredToOperatorsOnly(t *testing.T) {
	h := newTestHub(testEntries(3), nil)
	s := startSession(t, h, "evt-1")

	op, err := s.RegisterViewer("conn-op", models.RoleOperator)
	if err != nil {
		t.Fatalf("RegisterViewer operator = %v", err)
	}
	proj, err := s.RegisterViewer("conn-proj", models.RoleProjector)
	if err != nil {
		t.Fatalf("RegisterViewer projector = %v", err)
	}
	nextFrame(t, op)
	nextFrame(t, proj)

	s.handleFragment(models.TranscriptFragment{Text: "hello", IsFinal: false})

	frame := nextFrame(t, op)
	if frame["type"] != protocol.TypeTranscript || frame["text"] != "hello" {
		t.Fatalf("operator frame = %v", frame)
	}

	select {
	case data := <-proj.Outbound():
		t.Fatalf("projector received transcript frame: %s", data)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestIdleSessionEnds(t *testing.T) {
	h := newTestHub(testEntries(3), func(o *HubOptions) {
		o.Session.IdleTimeout = 30 * time.Millisecond
		o.Session.SweepInterval = 10 * time.Millisecond
	})
	s := startSession(t, h, "evt-idle")

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("idle session did not end")
	}
	if s.State() != StateEnded {
		t.Errorf("state = %v, want ENDED", s.State())
	}
	if _, ok := h.Get("evt-idle"); ok {
		t.Error("ended session still returned by hub")
	}
}

func TestHeartbeatTimeoutRemovesViewer(t *testing.T) {
	h := newTestHub(testEntries(3), func(o *HubOptions) {
		o.Session.HeartbeatTimeout = 30 * time.Millisecond
		o.Session.SweepInterval = 10 * time.Millisecond
		o.Session.IdleTimeout = time.Hour
	})
	s := startSession(t, h, "evt-1")

	v, err := s.RegisterViewer("conn-1", models.RoleProjector)
	if err != nil {
		t.Fatalf("RegisterViewer = %v", err)
	}
	nextFrame(t, v)

	// No heartbeats: the sweep must close the viewer's outbound stream.
	deadline := time.Now().Add(2 * time.Second)
	for {
		select {
		case _, ok := <-v.Outbound():
			if !ok {
				waitUntil(t, "registry empty", func() bool { return s.ViewerCount() == 0 })
				return
			}
		case <-time.After(50 * time.Millisecond):
		}
		if time.Now().After(deadline) {
			t.Fatal("viewer not removed after heartbeat timeout")
		}
	}
}

func TestHeartbeatKeepsViewerAlive(t *testing.T) {
	h := newTestHub(testEntries(3), func(o *HubOptions) {
		o.Session.HeartbeatTimeout = 60 * time.Millisecond
		o.Session.SweepInterval = 10 * time.Millisecond
		o.Session.IdleTimeout = time.Hour
	})
	s := startSession(t, h, "evt-1")

	v, err := s.RegisterViewer("conn-1", models.RoleProjector)
	if err != nil {
		t.Fatalf("RegisterViewer = %v", err)
	}
	nextFrame(t, v)

	for i := 0; i < 10; i++ {
		s.Heartbeat("conn-1")
		time.Sleep(20 * time.Millisecond)
	}
	if s.ViewerCount() != 1 {
		t.Error("heartbeating viewer was removed")
	}
}

func TestEndBroadcastsAndRejectsLateRegistrations(t *testing.T) {
	h := newTestHub(testEntries(3), nil)
	s := startSession(t, h, "evt-1")

	v, err := s.RegisterViewer("conn-1", models.RoleProjector)
	if err != nil {
		t.Fatalf("RegisterViewer = %v", err)
	}
	nextFrame(t, v)

	s.End("operator request")
	frame := nextFrame(t, v)
	if frame["type"] != protocol.TypeSessionEnded {
		t.Fatalf("frame type = %v, want %s", frame["type"], protocol.TypeSessionEnded)
	}
	if frame["reason"] != "operator request" {
		t.Errorf("reason = %v", frame["reason"])
	}

	<-s.Done()
	if _, err := s.RegisterViewer("conn-2", models.RoleProjector); !errors.Is(err, ErrSessionEnded) {
		t.Fatalf("RegisterViewer after end = %v, want ErrSessionEnded", err)
	}
}

func TestUpdateSettingsBroadcasts(t *testing.T) {
	h := newTestHub(testEntries(3), nil)
	s := startSession(t, h, "evt-1")

	v, err := s.RegisterViewer("conn-1", models.RoleOperator)
	if err != nil {
		t.Fatalf("RegisterViewer = %v", err)
	}
	nextFrame(t, v)

	s.UpdateSettings(models.EventSettings{DisplayFont: "Inter", DisplayFontSize: 48})

	frame := nextFrame(t, v)
	if frame["type"] != protocol.TypeEventSettingsUpdated {
		t.Fatalf("frame type = %v", frame["type"])
	}
	settings := frame["settings"].(map[string]any)
	if settings["displayFont"] != "Inter" {
		t.Errorf("displayFont = %v", settings["displayFont"])
	}
}

func TestWakeTriggerOpensRecognitionStream(t *testing.T) {
	h := newTestHub(testEntries(3), func(o *HubOptions) {
		o.Wake = wake.Config{Enabled: true, Cooldown: time.Hour, MinTokens: 3}
	})
	s := startSession(t, h, "evt-1")

	op, err := s.RegisterViewer("conn-op", models.RoleOperator)
	if err != nil {
		t.Fatalf("RegisterViewer = %v", err)
	}
	nextFrame(t, op)

	// One-shot classification cycles the simulated phrase set; keep
	// feeding chunks until the scripture-reference phrase fires the wake
	// trigger and the streaming handle opens.
	for i := 0; i < 10; i++ {
		if err := s.WriteAudio(context.Background(), []byte{0x01}); err != nil {
			t.Fatalf("WriteAudio = %v", err)
		}
	}

	// The opened simulated stream mirrors transcripts to the operator.
	frame := nextFrame(t, op)
	if frame["type"] != protocol.TypeTranscript {
		t.Fatalf("frame type = %v, want %s", frame["type"], protocol.TypeTranscript)
	}
}

func TestEndWhileHubLockedDoesNotBlockStateReads(t *testing.T) {
	h := newTestHub(testEntries(3), nil)
	s := startSession(t, h, "evt-1")

	// Another caller holds the hub lock while this session ends; its
	// removal callback queues behind that lock, but state reads must
	// still answer so the lock holder can proceed.
	h.mu.Lock()
	defer h.mu.Unlock()

	s.End("operator request")
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end while the hub lock was held")
	}

	stateCh := make(chan State, 1)
	go func() { stateCh <- s.State() }()
	select {
	case st := <-stateCh:
		if st != StateEnded {
			t.Errorf("state = %v, want ENDED", st)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("State blocked while the hub lock was held")
	}
}

func TestRestartedSessionSurvivesStragglingRemoval(t *testing.T) {
	h := newTestHub(testEntries(3), nil)
	old := startSession(t, h, "evt-1")

	old.End("operator request")
	<-old.Done()
	waitUntil(t, "old session gone", func() bool {
		_, ok := h.Get("evt-1")
		return !ok
	})

	replacement := startSession(t, h, "evt-1")

	// A late removal callback from the old session must not evict the
	// replacement registered under the same event.
	h.remove("evt-1", old)
	if got, ok := h.Get("evt-1"); !ok || got != replacement {
		t.Fatal("replacement session evicted by the old session's removal")
	}
}

func TestHubStartSessionIsIdempotent(t *testing.T) {
	h := newTestHub(testEntries(3), nil)
	s1 := startSession(t, h, "evt-1")
	s2, err := h.StartSession(context.Background(), "evt-1")
	if err != nil {
		t.Fatalf("second StartSession = %v", err)
	}
	if s1 != s2 {
		t.Fatal("second StartSession returned a different session")
	}
}

func TestHubEndUnknownSession(t *testing.T) {
	h := newTestHub(testEntries(3), nil)
	if err := h.End("evt-missing", "test"); !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("End = %v, want ErrUnknownSession", err)
	}
}

func TestHubIndependentSessions(t *testing.T) {
	h := newTestHub(testEntries(4), nil)
	s1 := startSession(t, h, "evt-1")
	s2 := startSession(t, h, "evt-2")

	s1.Next()
	s1.Next()
	waitUntil(t, "evt-1 slide 2", func() bool { return s1.CurrentSlide() == 2 })

	if got := s2.CurrentSlide(); got != 0 {
		t.Errorf("evt-2 slide = %d, want 0 (sessions must be independent)", got)
	}
}
