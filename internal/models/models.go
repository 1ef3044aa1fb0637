// Package models defines the data structures shared across the service:
// setlist content, recognized transcript fragments, and match decisions.
package models

import (
	"fmt"
	"time"
)

// EntryType identifies the kind of setlist entry a slide group was built from.
type EntryType string

const (
	EntrySong         EntryType = "song"
	EntryScripture    EntryType = "scripture"
	EntryMedia        EntryType = "media"
	EntryAnnouncement EntryType = "announcement"
)

// Matchable reports whether entries of this type carry reference text
// the match engine can align transcripts against.
func (t EntryType) Matchable() bool {
	return t == EntrySong || t == EntryScripture
}

// SetlistEntry is one item of an event's ordered program, as provided by
// the external setlist source. The service only ever reads these.
type SetlistEntry struct {
	Type          EntryType  `json:"type"`
	Title         string     `json:"title"`
	ReferenceText string     `json:"referenceText,omitempty"`
	MediaRef      string     `json:"mediaRef,omitempty"`
	DisplayLines  [][]string `json:"displayLines"`
}

// Slide is one displayable unit derived from a setlist entry.
type Slide struct {
	Lines []string `json:"lines"`

	// Reference holds the normalized reference text used for transcript
	// alignment. Empty for non-matchable entry types.
	Reference string `json:"-"`
}

// SlideGroup is the ordered sequence of slides derived from one setlist
// entry. Immutable once a session snapshot is built.
type SlideGroup struct {
	Title    string    `json:"title"`
	Type     EntryType `json:"type"`
	MediaRef string    `json:"mediaRef,omitempty"`
	Slides   []Slide   `json:"slides"`
}

// TranscriptFragment is a unit of recognized speech, partial or final.
// Fragments are ephemeral; they are never persisted beyond the current
// matching window.
type TranscriptFragment struct {
	Text         string
	IsFinal      bool
	Confidence   float64
	RecognizedAt time.Time
}

// MatchAction is the outcome of evaluating a fragment against the
// active slide.
type MatchAction int

const (
	ActionHold MatchAction = iota
	ActionAdvance
	ActionRetreat
)

// String returns the string representation of the action.
func (a MatchAction) String() string {
	switch a {
	case ActionHold:
		return "HOLD"
	case ActionAdvance:
		return "ADVANCE"
	case ActionRetreat:
		return "RETREAT"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", a)
	}
}

// MatchDecision is produced once per fragment batch and consumed
// immediately by the session hub.
type MatchDecision struct {
	Action      MatchAction
	TargetSlide int // flattened slide index into the session snapshot
	Score       float64
}

// ViewerRole distinguishes the two viewer adapter roles.
type ViewerRole string

const (
	RoleOperator  ViewerRole = "operator"
	RoleProjector ViewerRole = "projector"
)

// Valid reports whether the role is one of the known roles.
func (r ViewerRole) Valid() bool {
	return r == RoleOperator || r == RoleProjector
}

// EventSettings holds display settings an operator can change mid-event.
type EventSettings struct {
	DisplayFont     string `json:"displayFont,omitempty"`
	DisplayFontSize int    `json:"displayFontSize,omitempty"`
}
