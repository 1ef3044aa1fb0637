// Package setlist loads an event's ordered program from the external
// setlist source and builds the immutable session snapshot the hub and
// match engine work against.
package setlist

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"live-slide-sync-service/internal/models"
	"live-slide-sync-service/internal/service/match"
)

// Source provides read-only access to an event's setlist entries.
// The service never writes back.
type Source interface {
	Load(ctx context.Context, eventId string) ([]models.SetlistEntry, error)
}

// FileSource reads one JSON file per event from a directory.
type FileSource struct {
	Dir string
}

// Load reads <dir>/<eventId>.json.
func (s FileSource) Load(_ context.Context, eventId string) ([]models.SetlistEntry, error) {
	path := filepath.Join(s.Dir, eventId+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read setlist for event %s: %w", eventId, err)
	}
	var entries []models.SetlistEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse setlist for event %s: %w", eventId, err)
	}
	return entries, nil
}

// StaticSource serves a fixed entry list; used in tests and demos.
type StaticSource struct {
	Entries []models.SetlistEntry
}

// Load returns the fixed entries regardless of event.
func (s StaticSource) Load(_ context.Context, _ string) ([]models.SetlistEntry, error) {
	return s.Entries, nil
}

// slideRef locates one slide inside the snapshot's groups.
type slideRef struct {
	group int
	slide int
}

// Snapshot is the immutable per-session view of a setlist. Slides are
// addressable both by (group, slide) pair and by a flattened index the
// hub and match engine use for ordering.
type Snapshot struct {
	EventID string
	Groups  []models.SlideGroup

	flat []slideRef
}

// Build constructs a snapshot from setlist entries. Each entry becomes
// one slide group; matchable entries get normalized reference text
// distributed across their slides, one slice per display block.
func Build(eventId string, entries []models.SetlistEntry) (*Snapshot, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("event %s has an empty setlist", eventId)
	}

	snap := &Snapshot{EventID: eventId}

	for _, entry := range entries {
		group := models.SlideGroup{
			Title:    entry.Title,
			Type:     entry.Type,
			MediaRef: entry.MediaRef,
		}

		blocks := entry.DisplayLines
		if len(blocks) == 0 {
			// Media and announcement entries may carry no text; they
			// still occupy one slide so the operator can dwell on them.
			blocks = [][]string{nil}
		}

		for _, lines := range blocks {
			slide := models.Slide{Lines: lines}
			if entry.Type.Matchable() {
				slide.Reference = match.Normalize(joinLines(lines))
			}
			group.Slides = append(group.Slides, slide)
		}

		// Scripture entries often carry one reference text for the whole
		// passage; when a slide has no lines of its own, fall back to it.
		if entry.Type.Matchable() && entry.ReferenceText != "" {
			for i := range group.Slides {
				if group.Slides[i].Reference == "" {
					group.Slides[i].Reference = match.Normalize(entry.ReferenceText)
				}
			}
		}

		snap.Groups = append(snap.Groups, group)
	}

	for gi, g := range snap.Groups {
		for si := range g.Slides {
			snap.flat = append(snap.flat, slideRef{group: gi, slide: si})
		}
	}

	return snap, nil
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += " "
		}
		out += l
	}
	return out
}

// SlideCount returns the total number of slides across all groups.
func (s *Snapshot) SlideCount() int {
	return len(s.flat)
}

// At resolves a flattened index to its group/slide pair. The index must
// be in range; callers clamp first.
func (s *Snapshot) At(flat int) (groupIndex, slideIndex int, slide models.Slide) {
	ref := s.flat[flat]
	return ref.group, ref.slide, s.Groups[ref.group].Slides[ref.slide]
}

// Reference returns the normalized reference text of the slide at the
// flattened index, or "" when out of range or not matchable.
func (s *Snapshot) Reference(flat int) string {
	if flat < 0 || flat >= len(s.flat) {
		return ""
	}
	ref := s.flat[flat]
	return s.Groups[ref.group].Slides[ref.slide].Reference
}

// Clamp bounds a flattened index to [0, SlideCount-1].
func (s *Snapshot) Clamp(flat int) int {
	if flat < 0 {
		return 0
	}
	if max := len(s.flat) - 1; flat > max {
		return max
	}
	return flat
}
