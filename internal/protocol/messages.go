// Package protocol defines the JSON wire messages exchanged between the
// session hub and viewers. Every message carries a "type" discriminant;
// unknown types are ignored by receivers, never fatal.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"live-slide-sync-service/internal/models"
)

// Message type discriminants.
const (
	// Server -> viewer
	TypeSessionStarted       = "SESSION_STARTED"
	TypeDisplayUpdate        = "DISPLAY_UPDATE"
	TypeEventSettingsUpdated = "EVENT_SETTINGS_UPDATED"
	TypeRecognitionDegraded  = "RECOGNITION_DEGRADED"
	TypeTranscript           = "TRANSCRIPT"
	TypeSessionEnded         = "SESSION_ENDED"
	TypeError                = "ERROR"

	// Viewer -> server
	TypeStartSession   = "START_SESSION"
	TypeNext           = "NEXT"
	TypePrev           = "PREV"
	TypeEndSession     = "END_SESSION"
	TypeUpdateSettings = "UPDATE_SETTINGS"

	// Both directions
	TypeHeartbeat = "HEARTBEAT"
)

// ErrUnknownType marks a message whose type is not recognized.
// Callers drop the message with a log line and keep the connection open.
var ErrUnknownType = errors.New("unknown message type")

// SessionStarted carries the full session state. It is always the first
// message a viewer receives, and is re-sent wholesale on reconnect.
type SessionStarted struct {
	Type            string                `json:"type"`
	EventID         string                `json:"eventId"`
	Revision        uint64                `json:"revision"`
	ActiveItemIndex int                   `json:"activeItemIndex"`
	ActiveSlide     int                   `json:"activeSlideIndex"`
	Setlist         []models.SlideGroup   `json:"setlist"`
	Settings        models.EventSettings  `json:"settings"`
}

// DisplayUpdate carries the active slide after a mutation.
type DisplayUpdate struct {
	Type            string    `json:"type"`
	Revision        uint64    `json:"revision"`
	ActiveItemIndex int       `json:"activeItemIndex"`
	ActiveSlide     int       `json:"activeSlideIndex"`
	GroupTitle      string    `json:"groupTitle"`
	GroupType       string    `json:"groupType"`
	Lines           []string  `json:"lines"`
	MediaRef        string    `json:"mediaRef,omitempty"`
}

// EventSettingsUpdated notifies viewers of changed display settings.
type EventSettingsUpdated struct {
	Type     string               `json:"type"`
	Revision uint64               `json:"revision"`
	Settings models.EventSettings `json:"settings"`
}

// RecognitionDegraded signals that the session fell back to the
// simulated recognition backend.
type RecognitionDegraded struct {
	Type     string `json:"type"`
	Provider string `json:"provider"`
	Reason   string `json:"reason"`
}

// Transcript mirrors live recognition output to the operator console.
type Transcript struct {
	Type       string  `json:"type"`
	Text       string  `json:"text"`
	IsFinal    bool    `json:"isFinal"`
	Confidence float64 `json:"confidence,omitempty"`
}

// SessionEnded notifies viewers the session reached its terminal state.
type SessionEnded struct {
	Type    string `json:"type"`
	EventID string `json:"eventId"`
	Reason  string `json:"reason"`
}

// Error is sent to a single viewer whose request was rejected. It never
// affects other viewers.
type Error struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StartSession asks the hub to start (or join) the session for an event.
type StartSession struct {
	Type    string `json:"type"`
	EventID string `json:"eventId"`
}

// Command is an operator-only slide command (NEXT, PREV, END_SESSION).
type Command struct {
	Type string `json:"type"`
}

// UpdateSettings is an operator-only display settings change.
type UpdateSettings struct {
	Type     string               `json:"type"`
	Settings models.EventSettings `json:"settings"`
}

// Heartbeat keeps a viewer registration alive.
type Heartbeat struct {
	Type   string `json:"type"`
	SentAt int64  `json:"sentAt,omitempty"`
}

type envelope struct {
	Type string `json:"type"`
}

// Decode parses an inbound viewer message into its typed form.
// Returns ErrUnknownType (wrapped with the offending type) for message
// kinds this server does not understand.
func Decode(data []byte) (any, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("malformed message: %w", err)
	}

	switch env.Type {
	case TypeStartSession:
		var m StartSession
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	case TypeNext, TypePrev, TypeEndSession:
		var m Command
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	case TypeUpdateSettings:
		var m UpdateSettings
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	case TypeHeartbeat:
		var m Heartbeat
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

// Encode marshals an outbound message. Marshal failures are programming
// errors surfaced to the caller, not the wire.
func Encode(msg any) ([]byte, error) {
	return json.Marshal(msg)
}
