package config_test

import (
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/sitedyno/urlbot/internal/platform/config"
)

func TestConfigLoad_UsesDefaults(t *testing.T) {
	for _, k := range []string{
		"ADDR", "IDLE_TIMEOUT", "SHUTDOWN_TIMEOUT", "READ_HEADER_TIMEOUT", "READ_TIMEOUT", "WRITE_TIMEOUT",
		"SHORTEN_TIMEOUT", "HOST_URL_EMITS_ONLY", "FETCH_MAX_BYTES", "CODE_SCHEME", "LOG_LEVEL", "DB_DSN",
	} {
		t.Setenv(k, "")
	}

	cfg := config.Load()

	if cfg.Addr != ":9999" {
		t.Fatalf("Addr: got %q, want %q", cfg.Addr, ":9999")
	}
	if cfg.IdleTimeout != 60*time.Second {
		t.Fatalf("IdleTimeout: got %v, want %v", cfg.IdleTimeout, 60*time.Second)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Fatalf("ShutdownTimeout: got %v, want %v", cfg.ShutdownTimeout, 10*time.Second)
	}
	if cfg.ShortenTimeout != 15*time.Second {
		t.Fatalf("ShortenTimeout: got %v, want %v", cfg.ShortenTimeout, 15*time.Second)
	}
	if cfg.HostURLEmitsOnly {
		t.Fatal("HostURLEmitsOnly: got true, want false")
	}
	if cfg.FetchMaxBytes != 1<<20 {
		t.Fatalf("FetchMaxBytes: got %d, want %d", cfg.FetchMaxBytes, 1<<20)
	}
	if cfg.CodeScheme != "sqids" {
		t.Fatalf("CodeScheme: got %q, want %q", cfg.CodeScheme, "sqids")
	}
	if cfg.DBDSN != "" {
		t.Fatalf("DBDSN: got %q, want empty", cfg.DBDSN)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel: got %v, want %v", cfg.LogLevel, slog.LevelInfo)
	}
}

func TestConfigLoad_ReadsEnv(t *testing.T) {
	t.Setenv("ADDR", ":18080")
	t.Setenv("IDLE_TIMEOUT", "2m")
	t.Setenv("SHORTEN_TIMEOUT", "3")
	t.Setenv("FETCH_TIMEOUT", "1500ms")
	t.Setenv("HOST_URL_EMITS_ONLY", "TRUE")
	t.Setenv("FILTER_DENY_HOSTS", " example.com, ,ads.example.net ")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("BASE_URL", "https://s.example/")
	t.Setenv("CODE_SCHEME", "Base62")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := config.Load()

	if cfg.Addr != ":18080" {
		t.Fatalf("Addr: got %q, want %q", cfg.Addr, ":18080")
	}
	if cfg.IdleTimeout != 2*time.Minute {
		t.Fatalf("IdleTimeout: got %v, want %v", cfg.IdleTimeout, 2*time.Minute)
	}
	if cfg.ShortenTimeout != 3*time.Second {
		t.Fatalf("ShortenTimeout: got %v, want %v", cfg.ShortenTimeout, 3*time.Second)
	}
	if cfg.FetchTimeout != 1500*time.Millisecond {
		t.Fatalf("FetchTimeout: got %v, want %v", cfg.FetchTimeout, 1500*time.Millisecond)
	}
	if !cfg.HostURLEmitsOnly {
		t.Fatal("HostURLEmitsOnly: got false, want true")
	}
	if want := []string{"example.com", "ads.example.net"}; !reflect.DeepEqual(cfg.FilterDenyHosts, want) {
		t.Fatalf("FilterDenyHosts: got %v, want %v", cfg.FilterDenyHosts, want)
	}
	if want := []string{"k1:9092", "k2:9092"}; !reflect.DeepEqual(cfg.KafkaBrokers, want) {
		t.Fatalf("KafkaBrokers: got %v, want %v", cfg.KafkaBrokers, want)
	}
	if cfg.BaseURL != "https://s.example" {
		t.Fatalf("BaseURL: got %q, want %q", cfg.BaseURL, "https://s.example")
	}
	if cfg.CodeScheme != "base62" {
		t.Fatalf("CodeScheme: got %q, want %q", cfg.CodeScheme, "base62")
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel: got %v, want %v", cfg.LogLevel, slog.LevelDebug)
	}
}

func TestConfigLoad_IgnoresInvalidValues(t *testing.T) {
	t.Setenv("SHORTEN_TIMEOUT", "soon")
	t.Setenv("FETCH_MAX_BYTES", "-1")
	t.Setenv("CODE_SCHEME", "uuid")

	cfg := config.Load()

	if cfg.ShortenTimeout != 15*time.Second {
		t.Fatalf("ShortenTimeout: got %v, want %v", cfg.ShortenTimeout, 15*time.Second)
	}
	if cfg.FetchMaxBytes != 1<<20 {
		t.Fatalf("FetchMaxBytes: got %d", cfg.FetchMaxBytes)
	}
	if cfg.CodeScheme != "sqids" {
		t.Fatalf("CodeScheme: got %q", cfg.CodeScheme)
	}
}
