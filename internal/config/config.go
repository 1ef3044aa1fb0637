// Package config loads service configuration from environment variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all recognized configuration for the service.
type Config struct {
	Service       ServiceConfig
	STT           STTConfig
	Match         MatchConfig
	Wake          WakeConfig
	Session       SessionConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

// ServiceConfig holds process-level settings.
type ServiceConfig struct {
	Principal string // service identity attached to published events
	HTTPPort  string // websocket + API port
	ObsPort   string // metrics/health port
}

// STTConfig holds recognition gateway settings.
type STTConfig struct {
	Provider          string // "simulated" or "google"; absent credentials degrade to simulated
	LanguageCode      string
	AudioEncoding     string
	SampleRateHz      int
	InterimResults    bool
	PendingQueueSize  int           // audio chunks buffered before the provider is ready
	ReconnectCooldown time.Duration // repeated failure inside this window triggers fallback
}

// MatchConfig holds match engine tuning.
type MatchConfig struct {
	ConfidenceThreshold float64 // next-slide score required to advance
	AdvanceMargin       float64 // required lead of next-slide score over current-slide score
	WindowWords         int     // rolling transcript window size in words
}

// WakeConfig holds wake trigger settings.
type WakeConfig struct {
	Enabled   bool
	Cooldown  time.Duration
	MinTokens int
}

// SessionConfig holds session hub settings.
type SessionConfig struct {
	ViewerQueueSize  int           // per-viewer outbound queue capacity
	HeartbeatTimeout time.Duration // viewer silence past this is a disconnect
	IdleTimeout      time.Duration // viewer-less session lifetime before ENDED
	SetlistDir       string        // directory of per-event setlist JSON files
}

// KafkaConfig holds the session event feed settings.
type KafkaConfig struct {
	Enabled          bool
	Brokers          []string
	TopicTransitions string
	TopicLifecycle   string
	Principal        string
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json, console
}

// Load reads configuration from the environment, applying defaults for
// anything unset.
func Load() *Config {
	return &Config{
		Service: ServiceConfig{
			Principal: envOrDefault("SERVICE_PRINCIPAL", "svc-slide-sync"),
			HTTPPort:  envOrDefault("HTTP_PORT", "8080"),
			ObsPort:   envOrDefault("OBS_PORT", "9090"),
		},
		STT: STTConfig{
			Provider:          envOrDefault("STT_PROVIDER", "simulated"),
			LanguageCode:      envOrDefault("STT_LANGUAGE_CODE", "en-US"),
			AudioEncoding:     envOrDefault("STT_AUDIO_ENCODING", "LINEAR16"),
			SampleRateHz:      envInt("STT_SAMPLE_RATE_HZ", 16000),
			InterimResults:    envBool("STT_INTERIM_RESULTS", true),
			PendingQueueSize:  envInt("STT_PENDING_QUEUE_SIZE", 64),
			ReconnectCooldown: envDuration("STT_RECONNECT_COOLDOWN", 30*time.Second),
		},
		Match: MatchConfig{
			ConfidenceThreshold: envFloat("MATCH_CONFIDENCE_THRESHOLD", 0.62),
			AdvanceMargin:       envFloat("MATCH_ADVANCE_MARGIN", 0.15),
			WindowWords:         envInt("MATCH_WINDOW_WORDS", 24),
		},
		Wake: WakeConfig{
			Enabled:   envBool("WAKE_ENABLED", true),
			Cooldown:  envDuration("WAKE_COOLDOWN", 3*time.Second),
			MinTokens: envInt("WAKE_MIN_TOKENS", 3),
		},
		Session: SessionConfig{
			ViewerQueueSize:  envInt("VIEWER_QUEUE_SIZE", 32),
			HeartbeatTimeout: envDuration("VIEWER_HEARTBEAT_TIMEOUT", 45*time.Second),
			IdleTimeout:      envDuration("SESSION_IDLE_TIMEOUT", 2*time.Minute),
			SetlistDir:       envOrDefault("SETLIST_DIR", "./setlists"),
		},
		Kafka: KafkaConfig{
			Enabled:          envBool("KAFKA_ENABLED", false),
			Brokers:          envList("KAFKA_BROKERS"),
			TopicTransitions: envOrDefault("KAFKA_TOPIC_TRANSITIONS", "session.slide.transitions"),
			TopicLifecycle:   envOrDefault("KAFKA_TOPIC_LIFECYCLE", "session.lifecycle"),
			Principal:        envOrDefault("KAFKA_PRINCIPAL", "svc-slide-sync"),
		},
		Observability: ObservabilityConfig{
			LogLevel:  envOrDefault("LOG_LEVEL", "info"),
			LogFormat: envOrDefault("LOG_FORMAT", "json"),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
