// Package events publishes session lifecycle and slide transition events
// to Kafka for downstream consumers. Transcript text is never published.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"live-slide-sync-service/internal/observability/metrics"
)

// Event types emitted on the session feed.
const (
	EventSessionStarted       = "session.started"
	EventSessionEnded         = "session.ended"
	EventSlideTransition      = "session.slide.transition"
	EventRecognitionDegraded  = "session.recognition.degraded"
)

// SessionEvent is the payload published for every session state change.
type SessionEvent struct {
	EventType  string `json:"eventType"`
	EventID    string `json:"eventId"`
	Revision   uint64 `json:"revision,omitempty"`
	ItemIndex  int    `json:"itemIndex"`
	SlideIndex int    `json:"slideIndex"`
	Origin     string `json:"origin,omitempty"` // "operator" or "match"
	Detail     string `json:"detail,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}

// Publisher publishes session events to separate Kafka topics for slide
// transitions and lifecycle changes. When Kafka is disabled or no
// brokers are configured it degrades to log-only mode.
type Publisher struct {
	writerTransitions *kafka.Writer
	writerLifecycle   *kafka.Writer
	principal         string
	topicTransitions  string
	topicLifecycle    string
	enabled           bool
	metrics           *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers          []string
	TopicTransitions string
	TopicLifecycle   string
	Principal        string
	Enabled          bool
}

// New creates a new session event publisher.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{enabled: false, metrics: m}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal:        cfg.Principal,
			topicTransitions: cfg.TopicTransitions,
			topicLifecycle:   cfg.TopicLifecycle,
			enabled:          false,
			metrics:          m,
		}
	}

	// Longer dial timeout for DNS resolution in Kubernetes
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	writerTransitions := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.TopicTransitions,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}

	writerLifecycle := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.TopicLifecycle,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicTransitions", cfg.TopicTransitions).
		Str("topicLifecycle", cfg.TopicLifecycle).
		Str("principal", cfg.Principal).
		Msg("Kafka session event publisher initialized")

	return &Publisher{
		writerTransitions: writerTransitions,
		writerLifecycle:   writerLifecycle,
		principal:         cfg.Principal,
		topicTransitions:  cfg.TopicTransitions,
		topicLifecycle:    cfg.TopicLifecycle,
		enabled:           true,
		metrics:           m,
	}
}

// PublishTransition publishes a slide transition event, keyed by eventId
// so all transitions for one session land on the same partition.
func (p *Publisher) PublishTransition(ctx context.Context, ev SessionEvent) error {
	return p.publish(ctx, p.writerTransitions, p.topicTransitions, ev)
}

// PublishLifecycle publishes a session lifecycle event.
func (p *Publisher) PublishLifecycle(ctx context.Context, ev SessionEvent) error {
	return p.publish(ctx, p.writerLifecycle, p.topicLifecycle, ev)
}

func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic string, ev SessionEvent) error {
	start := time.Now()

	payload, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal session event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", ev.EventID).
		RawJSON("payload", payload).
		Msg("Publishing session event")

	if !p.enabled || writer == nil {
		p.metrics.RecordEventPublish(topic, ev.EventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(ev.EventID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(ev.EventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", ev.EventID).
			Msg("Failed to write session event to Kafka")
		p.metrics.RecordEventPublish(topic, ev.EventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordEventPublish(topic, ev.EventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes both Kafka writers.
func (p *Publisher) Close() error {
	var err error
	if p.writerTransitions != nil {
		if e := p.writerTransitions.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing transitions writer")
			err = e
		}
	}
	if p.writerLifecycle != nil {
		if e := p.writerLifecycle.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing lifecycle writer")
			err = e
		}
	}
	return err
}
