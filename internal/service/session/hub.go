package session

import (
	"context"
	"fmt"
	"sync"

	"live-slide-sync-service/internal/events"
	"live-slide-sync-service/internal/observability/logging"
	"live-slide-sync-service/internal/service/match"
	"live-slide-sync-service/internal/service/recognition/gateway"
	"live-slide-sync-service/internal/service/wake"
	"live-slide-sync-service/internal/setlist"
)

// HubOptions are the collaborators and tuning the hub hands to every
// session it creates.
type HubOptions struct {
	Session   Config
	Match     match.Config
	Wake      wake.Config
	Source    setlist.Source
	Gateway   *gateway.Gateway
	Publisher *events.Publisher
}

// Hub tracks the active sessions, at most one per event. Sessions are
// independent of each other; the hub only serializes creation.
type Hub struct {
	opts HubOptions

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewHub creates a session hub.
func NewHub(opts HubOptions) *Hub {
	return &Hub{
		opts:     opts,
		sessions: make(map[string]*Session),
	}
}

// StartSession returns the ACTIVE session for the event, creating one if
// none exists. Idempotent: concurrent starts for the same event converge
// on a single session.
func (h *Hub) StartSession(ctx context.Context, eventId string) (*Session, error) {
	if s, ok := h.Get(eventId); ok {
		return s, nil
	}

	entries, err := h.opts.Source.Load(ctx, eventId)
	if err != nil {
		return nil, fmt.Errorf("load setlist: %w", err)
	}
	snap, err := setlist.Build(eventId, entries)
	if err != nil {
		return nil, fmt.Errorf("build snapshot: %w", err)
	}

	deps := Deps{
		Engine:    match.NewEngine(h.opts.Match, nil),
		Gateway:   h.opts.Gateway,
		Publisher: h.opts.Publisher,
		Wake:      h.opts.Wake,
	}
	if h.opts.Wake.Enabled {
		// The classifier lives for the session, not the start request.
		deps.Classifier = h.opts.Gateway.Classifier(context.Background(), h.opts.Session.ProviderPreference)
	}
	var s *Session
	s = newSession(eventId, snap, h.opts.Session, deps, func(id string) { h.remove(id, s) })

	h.mu.Lock()
	if existing, ok := h.sessions[eventId]; ok && existing.State() != StateEnded {
		h.mu.Unlock()
		if deps.Classifier != nil {
			deps.Classifier.Close()
		}
		return existing, nil
	}
	h.sessions[eventId] = s
	h.mu.Unlock()

	s.start()
	return s, nil
}

// Get returns the live session for an event, if any.
func (h *Hub) Get(eventId string) (*Session, bool) {
	h.mu.Lock()
	s, ok := h.sessions[eventId]
	h.mu.Unlock()
	if !ok || s.State() == StateEnded {
		return nil, false
	}
	return s, true
}

// End ends the session for an event.
func (h *Hub) End(eventId, reason string) error {
	s, ok := h.Get(eventId)
	if !ok {
		return ErrUnknownSession
	}
	s.End(reason)
	return nil
}

// remove drops an ended session. Compared by pointer: a replacement
// started under the same event while the old one was ending stays.
func (h *Hub) remove(eventId string, ended *Session) {
	h.mu.Lock()
	if h.sessions[eventId] == ended {
		delete(h.sessions, eventId)
	}
	h.mu.Unlock()
}

// Shutdown ends every session and waits for each to finish, bounded by
// the context deadline.
func (h *Hub) Shutdown(ctx context.Context, reason string) {
	h.mu.Lock()
	open := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		open = append(open, s)
	}
	h.mu.Unlock()

	for _, s := range open {
		s.End(reason)
	}
	for _, s := range open {
		select {
		case <-s.Done():
		case <-ctx.Done():
			logger := logging.WithComponent("hub")
			logger.Warn().
				Str("eventId", s.EventID()).
				Msg("Shutdown deadline reached before session ended")
			return
		}
	}
}
