// Package logging provides structured logging with zerolog.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logging configuration.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, console
}

// Init initializes the global zerolog logger.
func Init(cfg Config) {
	zerolog.TimeFieldFormat = time.RFC3339

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var output io.Writer = os.Stdout
	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.Kitchen,
		}
	}

	log.Logger = zerolog.New(output).
		With().
		Timestamp().
		Str("service", "slide-sync").
		Logger()
}

// WithComponent returns a logger with a component tag.
func WithComponent(component string) zerolog.Logger {
	return log.With().
		Str("component", component).
		Logger()
}

// WithSession returns a logger with session context.
func WithSession(eventId string) zerolog.Logger {
	return log.With().
		Str("eventId", eventId).
		Logger()
}

// WithViewer returns a logger with viewer connection context.
func WithViewer(eventId, connectionId, role string) zerolog.Logger {
	return log.With().
		Str("eventId", eventId).
		Str("connectionId", connectionId).
		Str("role", role).
		Logger()
}

// WithProvider returns a logger with recognition provider context.
func WithProvider(eventId, provider string) zerolog.Logger {
	return log.With().
		Str("eventId", eventId).
		Str("sttProvider", provider).
		Logger()
}
