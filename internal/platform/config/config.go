package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Shortlink HTTP server. IdleTimeout closes keep-alive connections that
	// stay quiet for that long; ShutdownTimeout bounds graceful shutdown.
	Addr              string
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration

	LogLevel    slog.Level
	LogFormat   string
	ServiceName string

	PprofEnabled bool
	AdminAddr    string

	// Chat bridge
	ChatURL            string
	ChatToken          string
	BotNick            string
	ChatReconnectDelay time.Duration

	// URL plugin
	ShortenTimeout   time.Duration
	HostURLEmitsOnly bool
	MessageFormat    string
	StrictExtract    bool
	FetchTimeout     time.Duration
	FetchMaxBytes    int64
	UserAgent        string
	FilterDenyHosts  []string
	FilterAllowHosts []string
	URLRateLimit     int
	URLRateWindow    time.Duration
	HistorySize      int

	// Built-in shortener
	ShortlinkEnabled bool
	BaseURL          string
	CodeScheme       string

	// Admin API tokens. JWTIssuer keeps tokens minted for other services out.
	JWTSecret string
	JWTIssuer string
	JWTTTL    time.Duration

	OtlpGrpcEndpoint string
	OtlpServiceName  string
	TracingEnabled   bool

	DBDSN         string
	MigrationsDir string

	ClickBufferSize int

	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RateLimitEnabled bool
}

func Load() Config {
	cfg := Config{
		Addr:              ":9999",
		IdleTimeout:       60 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,

		LogLevel:    slog.LevelInfo,
		LogFormat:   "json",
		ServiceName: "urlbot",

		PprofEnabled: false,
		AdminAddr:    "127.0.0.1:6060",

		ChatURL:            "ws://localhost:8765/bot",
		BotNick:            "urlbot",
		ChatReconnectDelay: 5 * time.Second,

		ShortenTimeout: 15 * time.Second,
		FetchTimeout:   10 * time.Second,
		FetchMaxBytes:  1 << 20,
		UserAgent:      "urlbot/1.0 (+https://github.com/sitedyno/urlbot)",
		URLRateLimit:   5,
		URLRateWindow:  time.Minute,
		HistorySize:    50,

		ShortlinkEnabled: false,
		BaseURL:          "http://localhost:9999",
		CodeScheme:       "sqids",

		JWTTTL:    12 * time.Hour,
		JWTSecret: "change-me",
		JWTIssuer: "urlbot",

		OtlpGrpcEndpoint: "127.0.0.1:4317",
		OtlpServiceName:  "urlbot",
		TracingEnabled:   false,

		// Empty keeps short links in memory.
		DBDSN: "",

		ClickBufferSize: 10000,

		KafkaEnabled:  false,
		KafkaBrokers:  []string{"localhost:9092"},
		KafkaTopic:    "click-events",
		RedisAddr:     "localhost:6379",
		RedisPassword: "",
		RedisDB:       0,

		RateLimitEnabled: true,
	}

	_ = godotenv.Load(".env")

	if v, ok := os.LookupEnv("ADDR"); ok && v != "" {
		cfg.Addr = v
	}
	if v, ok := os.LookupEnv("IDLE_TIMEOUT"); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.IdleTimeout = d
		}
	}
	if v, ok := os.LookupEnv("SHUTDOWN_TIMEOUT"); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ShutdownTimeout = d
		}
	}
	if v, ok := os.LookupEnv("READ_HEADER_TIMEOUT"); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ReadHeaderTimeout = d
		}
	}
	if v, ok := os.LookupEnv("READ_TIMEOUT"); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ReadTimeout = d
		}
	}
	if v, ok := os.LookupEnv("WRITE_TIMEOUT"); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.WriteTimeout = d
		}
	}

	if v, ok := os.LookupEnv("LOG_LEVEL"); ok && v != "" {
		cfg.LogLevel = ParseLevel(v)
	}
	if v, ok := os.LookupEnv("LOG_FORMAT"); ok && v != "" {
		cfg.LogFormat = v
	}
	if v, ok := os.LookupEnv("SERVICE_NAME"); ok && v != "" {
		cfg.ServiceName = v
	}

	if v, ok := os.LookupEnv("PPROF_ENABLED"); ok && v != "" {
		cfg.PprofEnabled = strings.ToLower(v) == "true"
	}
	if v, ok := os.LookupEnv("ADMIN_ADDR"); ok && v != "" {
		cfg.AdminAddr = v
	}

	// Chat
	if v, ok := os.LookupEnv("CHAT_URL"); ok && v != "" {
		cfg.ChatURL = v
	}
	if v, ok := os.LookupEnv("CHAT_TOKEN"); ok && v != "" {
		cfg.ChatToken = v
	}
	if v, ok := os.LookupEnv("BOT_NICK"); ok && v != "" {
		cfg.BotNick = v
	}
	if v, ok := os.LookupEnv("CHAT_RECONNECT_DELAY"); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.ChatReconnectDelay = d
		}
	}

	// URL plugin
	if v, ok := os.LookupEnv("SHORTEN_TIMEOUT"); ok && v != "" {
		if d, ok := parseSeconds(v); ok && d > 0 {
			cfg.ShortenTimeout = d
		}
	}
	if v, ok := os.LookupEnv("HOST_URL_EMITS_ONLY"); ok && v != "" {
		cfg.HostURLEmitsOnly = strings.ToLower(v) == "true"
	}
	if v, ok := os.LookupEnv("MESSAGE_FORMAT"); ok && v != "" {
		cfg.MessageFormat = v
	}
	if v, ok := os.LookupEnv("STRICT_EXTRACT"); ok && v != "" {
		cfg.StrictExtract = strings.ToLower(v) == "true"
	}
	if v, ok := os.LookupEnv("FETCH_TIMEOUT"); ok && v != "" {
		if d, ok := parseSeconds(v); ok && d > 0 {
			cfg.FetchTimeout = d
		}
	}
	if v, ok := os.LookupEnv("FETCH_MAX_BYTES"); ok && v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.FetchMaxBytes = n
		}
	}
	if v, ok := os.LookupEnv("USER_AGENT"); ok && v != "" {
		cfg.UserAgent = v
	}
	if v, ok := os.LookupEnv("FILTER_DENY_HOSTS"); ok && v != "" {
		cfg.FilterDenyHosts = splitList(v)
	}
	if v, ok := os.LookupEnv("FILTER_ALLOW_HOSTS"); ok && v != "" {
		cfg.FilterAllowHosts = splitList(v)
	}
	if v, ok := os.LookupEnv("URL_RATE_LIMIT"); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.URLRateLimit = n
		}
	}
	if v, ok := os.LookupEnv("URL_RATE_WINDOW"); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.URLRateWindow = d
		}
	}
	if v, ok := os.LookupEnv("HISTORY_SIZE"); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.HistorySize = n
		}
	}

	// Shortener
	if v, ok := os.LookupEnv("SHORTLINK_ENABLED"); ok && v != "" {
		cfg.ShortlinkEnabled = strings.ToLower(v) == "true"
	}
	if v, ok := os.LookupEnv("BASE_URL"); ok && v != "" {
		cfg.BaseURL = strings.TrimRight(v, "/")
	}
	if v, ok := os.LookupEnv("CODE_SCHEME"); ok && v != "" {
		switch s := strings.ToLower(v); s {
		case "sqids", "base62":
			cfg.CodeScheme = s
		}
	}

	if v, ok := os.LookupEnv("JWT_SECRET"); ok && v != "" {
		cfg.JWTSecret = v
	}
	if v, ok := os.LookupEnv("JWT_ISSUER"); ok && v != "" {
		cfg.JWTIssuer = v
	}
	if v, ok := os.LookupEnv("JWT_TTL"); ok && v != "" {
		if t, err := time.ParseDuration(v); err == nil {
			cfg.JWTTTL = t
		}
	}

	if v, ok := os.LookupEnv("TRACING_ENABLED"); ok && v != "" {
		cfg.TracingEnabled = strings.ToLower(v) == "true"
	}
	if v, ok := os.LookupEnv("OTLP_GRPC_ENDPOINT"); ok && v != "" {
		cfg.OtlpGrpcEndpoint = v
	}
	if v, ok := os.LookupEnv("OTLP_SERVICE_NAME"); ok && v != "" {
		cfg.OtlpServiceName = v
	}

	if v, ok := os.LookupEnv("DB_DSN"); ok && v != "" {
		cfg.DBDSN = v
	}
	if v, ok := os.LookupEnv("MIGRATIONS_DIR"); ok && v != "" {
		cfg.MigrationsDir = v
	}

	if v, ok := os.LookupEnv("CLICK_BUFFER_SIZE"); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ClickBufferSize = n
		}
	}

	// Kafka
	if v, ok := os.LookupEnv("KAFKA_ENABLED"); ok && v != "" {
		cfg.KafkaEnabled = strings.ToLower(v) == "true"
	}
	if v, ok := os.LookupEnv("KAFKA_BROKERS"); ok && v != "" {
		cfg.KafkaBrokers = splitList(v)
	}
	if v, ok := os.LookupEnv("KAFKA_TOPIC"); ok && v != "" {
		cfg.KafkaTopic = v
	}

	// Redis
	if v, ok := os.LookupEnv("REDIS_ADDR"); ok && v != "" {
		cfg.RedisAddr = v
	}
	if v, ok := os.LookupEnv("REDIS_PASSWORD"); ok && v != "" {
		cfg.RedisPassword = v
	}
	if v, ok := os.LookupEnv("REDIS_DB"); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.RedisDB = n
		}
	}

	if v, ok := os.LookupEnv("RATELIMIT_ENABLED"); ok && v != "" {
		cfg.RateLimitEnabled = strings.ToLower(v) == "true"
	}

	return cfg
}

// ParseLevel maps a LOG_LEVEL value to a slog level; unknown values are info.
func ParseLevel(v string) slog.Level {
	switch strings.ToLower(v) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// parseSeconds accepts a bare number of seconds ("15", "0.5") or a Go duration ("15s").
func parseSeconds(v string) (time.Duration, bool) {
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(f * float64(time.Second)), true
	}
	d, err := time.ParseDuration(v)
	return d, err == nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
