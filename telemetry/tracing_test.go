package telemetry

import (
	"context"
	"errors"
	"testing"
)

func TestTracingConfigFromEnv(t *testing.T) {
	tests := []struct {
		name         string
		endpoint     string
		insecure     string
		ratio        string
		wantInsecure bool
		wantRatio    float64
	}{
		{"defaults", "", "", "", true, 1},
		{"secure exporter", "otel:4317", "false", "", false, 1},
		{"half sampled", "otel:4317", "", "0.5", true, 0.5},
		{"ratio out of range", "otel:4317", "", "2", true, 1},
		{"garbage values", "otel:4317", "maybe", "abc", true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", tt.endpoint)
			t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", tt.insecure)
			t.Setenv("OTEL_TRACES_SAMPLE_RATIO", tt.ratio)
			tc := tracingConfigFromEnv()
			if tc.endpoint != tt.endpoint {
				t.Errorf("endpoint = %q, want %q", tc.endpoint, tt.endpoint)
			}
			if tc.insecure != tt.wantInsecure {
				t.Errorf("insecure = %v, want %v", tc.insecure, tt.wantInsecure)
			}
			if tc.ratio != tt.wantRatio {
				t.Errorf("ratio = %v, want %v", tc.ratio, tt.wantRatio)
			}
		})
	}
}

func TestInitTracingDisabled(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	shutdown, err := InitTracing("streamdash-test", "0.0.0")
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	shutdown()
	if IsTracingEnabled() {
		t.Error("tracing should stay disabled without an endpoint")
	}
}

func TestSpanHelpersWithoutProvider(t *testing.T) {
	ctx := WithCorrelation(context.Background(), "corr-1")
	_, span := StartSpan(ctx, "test", "op")
	RecordError(span, errors.New("boom"))
	RecordError(span, nil)
	SetSpanSuccess(span)
	span.End()

	attrs := HTTPAttrs("GET", "/healthz", 200)
	if len(attrs) != 3 || attrs[2].Value.AsInt64() != 200 {
		t.Errorf("HTTPAttrs = %v", attrs)
	}
}
