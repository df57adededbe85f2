package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewResource(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.ServiceVersion = "1.0.0"

	attrs := map[string]string{}
	for _, attr := range newResource(cfg).Attributes() {
		attrs[string(attr.Key)] = attr.Value.AsString()
	}
	assert.Equal(t, "reqengine", attrs["service.name"])
	assert.Equal(t, "1.0.0", attrs["service.version"])
}

func TestStripScheme(t *testing.T) {
	tests := map[string]string{
		"https://otel.example.com:4318": "otel.example.com:4318",
		"http://localhost:4318":         "localhost:4318",
		"localhost:4317":                "localhost:4317",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, stripScheme(in))
		})
	}
}

func TestOptions(t *testing.T) {
	var o options
	assert.Nil(t, o.traceExporter)
	assert.Nil(t, o.metricExporter)

	WithTraceExporter(nil)(&o)
	WithMetricExporter(nil)(&o)
	assert.Nil(t, o.traceExporter)
	assert.Nil(t, o.metricExporter)
}
