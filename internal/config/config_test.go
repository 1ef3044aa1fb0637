package config

import (
	"os"
	"testing"
	"time"
)

var configEnvVars = []string{
	"SERVICE_PRINCIPAL", "HTTP_PORT", "OBS_PORT",
	"STT_PROVIDER", "STT_LANGUAGE_CODE", "STT_SAMPLE_RATE_HZ",
	"STT_INTERIM_RESULTS", "STT_PENDING_QUEUE_SIZE", "STT_RECONNECT_COOLDOWN",
	"MATCH_CONFIDENCE_THRESHOLD", "MATCH_ADVANCE_MARGIN", "MATCH_WINDOW_WORDS",
	"WAKE_ENABLED", "WAKE_COOLDOWN", "WAKE_MIN_TOKENS",
	"VIEWER_QUEUE_SIZE", "VIEWER_HEARTBEAT_TIMEOUT", "SESSION_IDLE_TIMEOUT", "SETLIST_DIR",
	"KAFKA_ENABLED", "KAFKA_BROKERS", "KAFKA_TOPIC_TRANSITIONS", "KAFKA_TOPIC_LIFECYCLE", "KAFKA_PRINCIPAL",
	"LOG_LEVEL", "LOG_FORMAT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, v := range configEnvVars {
		os.Unsetenv(v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	if cfg.Service.Principal != "svc-slide-sync" {
		t.Errorf("expected default principal 'svc-slide-sync', got %s", cfg.Service.Principal)
	}
	if cfg.Service.HTTPPort != "8080" {
		t.Errorf("expected default HTTP port '8080', got %s", cfg.Service.HTTPPort)
	}
	if cfg.Service.ObsPort != "9090" {
		t.Errorf("expected default obs port '9090', got %s", cfg.Service.ObsPort)
	}

	if cfg.STT.Provider != "simulated" {
		t.Errorf("expected default STT provider 'simulated', got %s", cfg.STT.Provider)
	}
	if cfg.STT.LanguageCode != "en-US" {
		t.Errorf("expected default language 'en-US', got %s", cfg.STT.LanguageCode)
	}
	if cfg.STT.SampleRateHz != 16000 {
		t.Errorf("expected default sample rate 16000, got %d", cfg.STT.SampleRateHz)
	}
	if !cfg.STT.InterimResults {
		t.Error("expected default interim results true")
	}
	if cfg.STT.PendingQueueSize != 64 {
		t.Errorf("expected default pending queue size 64, got %d", cfg.STT.PendingQueueSize)
	}
	if cfg.STT.ReconnectCooldown != 30*time.Second {
		t.Errorf("expected default reconnect cooldown 30s, got %v", cfg.STT.ReconnectCooldown)
	}

	if cfg.Match.ConfidenceThreshold != 0.62 {
		t.Errorf("expected default confidence threshold 0.62, got %v", cfg.Match.ConfidenceThreshold)
	}
	if cfg.Match.AdvanceMargin != 0.15 {
		t.Errorf("expected default advance margin 0.15, got %v", cfg.Match.AdvanceMargin)
	}
	if cfg.Match.WindowWords != 24 {
		t.Errorf("expected default window words 24, got %d", cfg.Match.WindowWords)
	}

	if !cfg.Wake.Enabled {
		t.Error("expected wake trigger enabled by default")
	}
	if cfg.Wake.Cooldown != 3*time.Second {
		t.Errorf("expected default wake cooldown 3s, got %v", cfg.Wake.Cooldown)
	}
	if cfg.Wake.MinTokens != 3 {
		t.Errorf("expected default wake min tokens 3, got %d", cfg.Wake.MinTokens)
	}

	if cfg.Session.ViewerQueueSize != 32 {
		t.Errorf("expected default viewer queue size 32, got %d", cfg.Session.ViewerQueueSize)
	}
	if cfg.Session.HeartbeatTimeout != 45*time.Second {
		t.Errorf("expected default heartbeat timeout 45s, got %v", cfg.Session.HeartbeatTimeout)
	}
	if cfg.Session.IdleTimeout != 2*time.Minute {
		t.Errorf("expected default idle timeout 2m, got %v", cfg.Session.IdleTimeout)
	}

	if cfg.Kafka.Enabled {
		t.Error("expected Kafka disabled by default")
	}
	if cfg.Kafka.TopicTransitions != "session.slide.transitions" {
		t.Errorf("unexpected default transitions topic: %s", cfg.Kafka.TopicTransitions)
	}

	if cfg.Observability.LogLevel != "info" {
		t.Errorf("expected default log level 'info', got %s", cfg.Observability.LogLevel)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv(t)

	os.Setenv("SERVICE_PRINCIPAL", "custom-principal")
	os.Setenv("HTTP_PORT", "9999")
	os.Setenv("STT_PROVIDER", "google")
	os.Setenv("STT_SAMPLE_RATE_HZ", "8000")
	os.Setenv("STT_INTERIM_RESULTS", "false")
	os.Setenv("MATCH_CONFIDENCE_THRESHOLD", "0.75")
	os.Setenv("MATCH_ADVANCE_MARGIN", "0.2")
	os.Setenv("MATCH_WINDOW_WORDS", "40")
	os.Setenv("WAKE_COOLDOWN", "5s")
	os.Setenv("WAKE_MIN_TOKENS", "4")
	os.Setenv("VIEWER_QUEUE_SIZE", "8")
	os.Setenv("SESSION_IDLE_TIMEOUT", "10m")
	os.Setenv("KAFKA_ENABLED", "true")
	os.Setenv("KAFKA_BROKERS", "broker-1:9092, broker-2:9092")
	os.Setenv("LOG_LEVEL", "debug")
	defer clearEnv(t)

	cfg := Load()

	if cfg.Service.Principal != "custom-principal" {
		t.Errorf("expected principal 'custom-principal', got %s", cfg.Service.Principal)
	}
	if cfg.Service.HTTPPort != "9999" {
		t.Errorf("expected HTTP port '9999', got %s", cfg.Service.HTTPPort)
	}
	if cfg.STT.Provider != "google" {
		t.Errorf("expected provider 'google', got %s", cfg.STT.Provider)
	}
	if cfg.STT.SampleRateHz != 8000 {
		t.Errorf("expected sample rate 8000, got %d", cfg.STT.SampleRateHz)
	}
	if cfg.STT.InterimResults {
		t.Error("expected interim results false")
	}
	if cfg.Match.ConfidenceThreshold != 0.75 {
		t.Errorf("expected confidence threshold 0.75, got %v", cfg.Match.ConfidenceThreshold)
	}
	if cfg.Match.AdvanceMargin != 0.2 {
		t.Errorf("expected advance margin 0.2, got %v", cfg.Match.AdvanceMargin)
	}
	if cfg.Match.WindowWords != 40 {
		t.Errorf("expected window words 40, got %d", cfg.Match.WindowWords)
	}
	if cfg.Wake.Cooldown != 5*time.Second {
		t.Errorf("expected wake cooldown 5s, got %v", cfg.Wake.Cooldown)
	}
	if cfg.Wake.MinTokens != 4 {
		t.Errorf("expected wake min tokens 4, got %d", cfg.Wake.MinTokens)
	}
	if cfg.Session.ViewerQueueSize != 8 {
		t.Errorf("expected viewer queue size 8, got %d", cfg.Session.ViewerQueueSize)
	}
	if cfg.Session.IdleTimeout != 10*time.Minute {
		t.Errorf("expected idle timeout 10m, got %v", cfg.Session.IdleTimeout)
	}
	if !cfg.Kafka.Enabled {
		t.Error("expected Kafka enabled")
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[0] != "broker-1:9092" || cfg.Kafka.Brokers[1] != "broker-2:9092" {
		t.Errorf("unexpected brokers: %v", cfg.Kafka.Brokers)
	}
	if cfg.Observability.LogLevel != "debug" {
		t.Errorf("expected log level 'debug', got %s", cfg.Observability.LogLevel)
	}
}

func TestLoad_InvalidValuesFallBackToDefaults(t *testing.T) {
	clearEnv(t)

	os.Setenv("STT_SAMPLE_RATE_HZ", "not-a-number")
	os.Setenv("MATCH_CONFIDENCE_THRESHOLD", "high")
	os.Setenv("WAKE_COOLDOWN", "soon")
	os.Setenv("KAFKA_ENABLED", "yep")
	defer clearEnv(t)

	cfg := Load()

	if cfg.STT.SampleRateHz != 16000 {
		t.Errorf("expected fallback sample rate 16000, got %d", cfg.STT.SampleRateHz)
	}
	if cfg.Match.ConfidenceThreshold != 0.62 {
		t.Errorf("expected fallback threshold 0.62, got %v", cfg.Match.ConfidenceThreshold)
	}
	if cfg.Wake.Cooldown != 3*time.Second {
		t.Errorf("expected fallback cooldown 3s, got %v", cfg.Wake.Cooldown)
	}
	if cfg.Kafka.Enabled {
		t.Error("expected fallback Kafka disabled")
	}
}
