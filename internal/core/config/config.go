// Package config reads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type SourcesCfg struct {
	Roster         string
	StateTopology  string
	CountyTopology string
	StateObject    string
	CountyObject   string
	MetricURL      string
}

type LoadCfg struct {
	Timeout      time.Duration
	Retries      int
	RetryBackoff time.Duration
}

type CacheCfg struct {
	Enabled   bool
	RedisAddr string
	TTL       time.Duration
	LRUSize   int
	OpTimeout time.Duration
}

type EventsCfg struct {
	Enabled bool
	Brokers []string
	Topic   string
}

type Config struct {
	Addr        string
	LogLevel    string
	LogConsole  bool
	LogSampleN  int
	Sources     SourcesCfg
	Load        LoadCfg
	Jitter      float64
	ViewWidth   float64
	ViewHeight  float64
	Projection  string
	H3Res       int
	Cache       CacheCfg
	Events      EventsCfg
	DebugExport bool
	DataAddr    string

	MetricsEnabled bool
}

func FromEnv() Config {
	res := getint("H3_RES", 5)
	if res < 0 || res > 15 {
		res = 5
	}

	jitter := getfloat("METRIC_JITTER", 0.02)
	if !getbool("METRIC_JITTER_ENABLED", false) || jitter < 0 {
		jitter = 0
	}

	retries := getint("LOAD_RETRIES", 3)
	if retries < 0 {
		retries = 0
	}

	return Config{
		Addr:       getenv("ADDR", ":8090"),
		LogLevel:   getenv("LOG_LEVEL", "info"),
		LogConsole: getbool("LOG_CONSOLE", false),
		LogSampleN: getint("LOG_SAMPLE_N", 0),
		Sources: SourcesCfg{
			Roster:         getenv("ROSTER_SOURCE", "data/fips_county_codes.txt"),
			StateTopology:  getenv("STATE_TOPOLOGY_SOURCE", "data/states-albers-10m.json"),
			CountyTopology: getenv("COUNTY_TOPOLOGY_SOURCE", "data/counties-albers-10m.json"),
			StateObject:    getenv("STATE_TOPOLOGY_OBJECT", "states"),
			CountyObject:   getenv("COUNTY_TOPOLOGY_OBJECT", "counties"),
			MetricURL:      strings.TrimRight(getenv("METRIC_SERVICE_URL", "http://localhost:8000"), "/"),
		},
		Load: LoadCfg{
			Timeout:      getduration("LOAD_TIMEOUT", 30*time.Second),
			Retries:      retries,
			RetryBackoff: getduration("LOAD_RETRY_BACKOFF", 500*time.Millisecond),
		},
		Jitter:     jitter,
		ViewWidth:  getfloat("VIEWPORT_WIDTH", 975),
		ViewHeight: getfloat("VIEWPORT_HEIGHT", 610),
		Projection: getenv("PROJECTION", "identity"),
		H3Res:      res,
		Cache: CacheCfg{
			Enabled:   getbool("CACHE_ENABLED", false),
			RedisAddr: getenv("REDIS_ADDR", "localhost:6379"),
			TTL:       getduration("CACHE_TTL", 10*time.Minute),
			LRUSize:   getint("LRU_SIZE", 16),
			OpTimeout: getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),
		},
		Events: EventsCfg{
			Enabled: getbool("EVENTS_ENABLED", false),
			Brokers: splitList(getenv("KAFKA_BROKERS", "localhost:9092")),
			Topic:   getenv("KAFKA_TOPIC", "choropleth-view"),
		},
		DebugExport: getbool("DEBUG_EXPORT", false),
		DataAddr:    getenv("DATA_SERVER_ADDR", ":8000"),

		MetricsEnabled: getbool("METRICS_ENABLED", true),
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
