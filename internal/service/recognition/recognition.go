// Package recognition defines the interface every speech-recognition
// provider implements, so the match engine and session hub stay
// provider-agnostic.
package recognition

import (
	"context"

	"live-slide-sync-service/internal/models"
)

// Callback receives transcript results from a provider's stream.
type Callback interface {
	// OnPartial is called when an interim/partial transcript is received.
	OnPartial(text string)

	// OnFinal is called when a final transcript is received.
	OnFinal(text string, confidence float64)

	// OnError is called when a transport or provider error occurs.
	OnError(err error)
}

// Provider is one concrete speech-recognition backend. Implementations:
// the deterministic simulated backend and Google Cloud Speech-to-Text.
type Provider interface {
	// ID identifies the provider ("simulated", "google").
	ID() string

	// Start begins a streaming transcription session. Results arrive on
	// the callback until Close. A closed stream is not restartable; a
	// new Start begins a fresh sequence.
	Start(ctx context.Context, cb Callback) error

	// SendAudio sends audio bytes into the stream.
	SendAudio(ctx context.Context, audio []byte) error

	// TranscribeChunk performs one-shot recognition of a single chunk.
	// Streaming-only providers return (nil, nil).
	TranscribeChunk(ctx context.Context, audio []byte) (*models.TranscriptFragment, error)

	// Close ends the session and releases resources. Idempotent.
	Close() error
}

// Known provider IDs.
const (
	ProviderSimulated = "simulated"
	ProviderGoogle    = "google"
)
