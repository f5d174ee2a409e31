package telemetry

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default is valid", func(*Config) {}, false},
		{"missing service name", func(c *Config) { c.ServiceName = "" }, true},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, true},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, true},
		{"bad exporter", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Exporter = "jaeger" }, true},
		{"bad sampling rate", func(c *Config) { c.Tracing.SamplingRate = 1.5 }, true},
		{"metrics without address", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.ListenAddress = "" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewLoggerLevels(t *testing.T) {
	logger, err := NewLogger(LoggingConfig{Level: "debug", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	if logger.GetLevel() != zerolog.DebugLevel {
		t.Errorf("level = %v, want debug", logger.GetLevel())
	}

	logger, err = NewLogger(LoggingConfig{Level: "nonsense", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	if logger.GetLevel() != zerolog.InfoLevel {
		t.Errorf("unknown level should fall back to info, got %v", logger.GetLevel())
	}
}

func TestDisabledMetricsAreNoOps(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}
	// None of these may panic on the no-op instance.
	m.EvaluationCompleted(3, 0)
	m.ProviderCall("vault", time.Millisecond, nil)
	m.PipeFailure("hexd")
	m.CacheHit("vault")
	m.CacheMiss("vault")
	if m.StartServer() != nil {
		t.Error("disabled metrics started a server")
	}
}

func TestMetricsExposition(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: true, Namespace: "envault", Path: "/metrics", ListenAddress: ":0"})
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}
	m.EvaluationCompleted(5, 0)
	m.EvaluationCompleted(2, 1)
	m.ProviderCall("vault", 20*time.Millisecond, nil)
	m.ProviderCall("vault", 5*time.Millisecond, errors.New("boom"))
	m.CacheHit("vault")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()

	for _, want := range []string{
		`envault_evaluations_total{status="ok"} 1`,
		`envault_evaluations_total{status="error"} 1`,
		`envault_provider_calls_total{provider="vault"} 2`,
		`envault_provider_errors_total{provider="vault"} 1`,
		`envault_cache_hits_total{provider="vault"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func TestDisabledTracerProducesSpans(t *testing.T) {
	tr, err := NewTracer(TracingConfig{Enabled: false}, "envault", "test")
	if err != nil {
		t.Fatalf("NewTracer failed: %v", err)
	}
	ctx, span := tr.StartEvaluationSpan(t.Context(), "production", []string{"node"})
	if ctx == nil || span == nil {
		t.Fatal("no span produced")
	}
	span.End()
	if err := tr.Shutdown(t.Context()); err != nil {
		t.Errorf("shutdown failed: %v", err)
	}
}
