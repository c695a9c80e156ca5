package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"H3_RES", "METRIC_JITTER", "METRIC_JITTER_ENABLED", "LOAD_RETRIES", "KAFKA_BROKERS", "METRIC_SERVICE_URL", "METRICS_ENABLED"} {
		t.Setenv(k, "")
	}
	c := FromEnv()

	assert.Equal(t, ":8090", c.Addr)
	assert.Equal(t, 5, c.H3Res)
	assert.Zero(t, c.Jitter, "jitter is off unless enabled")
	assert.Equal(t, 3, c.Load.Retries)
	assert.Equal(t, "states", c.Sources.StateObject)
	assert.Equal(t, "counties", c.Sources.CountyObject)
	assert.Equal(t, []string{"localhost:9092"}, c.Events.Brokers)
	assert.True(t, c.MetricsEnabled)
	assert.Equal(t, 975.0, c.ViewWidth)
	assert.False(t, c.DebugExport)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("ADDR", ":9999")
	t.Setenv("METRIC_JITTER_ENABLED", "yes")
	t.Setenv("METRIC_JITTER", "0.05")
	t.Setenv("LOAD_TIMEOUT", "2s")
	t.Setenv("LOAD_RETRIES", "-1")
	t.Setenv("KAFKA_BROKERS", " a:1 , ,b:2")
	t.Setenv("METRIC_SERVICE_URL", "http://data:8000/")
	t.Setenv("CACHE_ENABLED", "true")
	t.Setenv("DEBUG_EXPORT", "1")
	t.Setenv("METRICS_ENABLED", "false")

	c := FromEnv()
	assert.Equal(t, ":9999", c.Addr)
	assert.Equal(t, 0.05, c.Jitter)
	assert.Equal(t, 2*time.Second, c.Load.Timeout)
	assert.Equal(t, 0, c.Load.Retries)
	assert.Equal(t, []string{"a:1", "b:2"}, c.Events.Brokers)
	assert.Equal(t, "http://data:8000", c.Sources.MetricURL)
	assert.True(t, c.Cache.Enabled)
	assert.True(t, c.DebugExport)
	assert.False(t, c.MetricsEnabled)
}

func TestFromEnv_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("H3_RES", "42")
	t.Setenv("VIEWPORT_WIDTH", "wide")
	t.Setenv("LOG_CONSOLE", "maybe")

	c := FromEnv()
	assert.Equal(t, 5, c.H3Res)
	assert.Equal(t, 975.0, c.ViewWidth)
	assert.False(t, c.LogConsole)
}
