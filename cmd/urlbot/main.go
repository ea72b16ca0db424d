package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sitedyno/urlbot/internal/app/shortlink"
	slcache "github.com/sitedyno/urlbot/internal/app/shortlink/cache"
	shortlinkhttpapi "github.com/sitedyno/urlbot/internal/app/shortlink/httpapi"
	"github.com/sitedyno/urlbot/internal/app/shortlink/repo"
	"github.com/sitedyno/urlbot/internal/app/shortlink/stats"
	"github.com/sitedyno/urlbot/internal/app/urlinfo"
	"github.com/sitedyno/urlbot/internal/app/urlinfo/fetch"
	"github.com/sitedyno/urlbot/internal/app/urlinfo/filters"
	"github.com/sitedyno/urlbot/internal/app/urlinfo/observe"
	"github.com/sitedyno/urlbot/internal/platform/auth"
	"github.com/sitedyno/urlbot/internal/platform/chat"
	"github.com/sitedyno/urlbot/internal/platform/config"
	"github.com/sitedyno/urlbot/internal/platform/db"
	"github.com/sitedyno/urlbot/internal/platform/httpmiddleware"
	"github.com/sitedyno/urlbot/internal/platform/httpserver"
	"github.com/sitedyno/urlbot/internal/platform/metrics"
	"github.com/sitedyno/urlbot/internal/platform/migrate"
	"github.com/sitedyno/urlbot/internal/platform/ratelimit"
	"github.com/sitedyno/urlbot/internal/platform/redisx"
	"github.com/sitedyno/urlbot/internal/platform/trace"
	"github.com/sitedyno/urlbot/migrations"
)

var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// shortlinkStore is what both repositories provide.
type shortlinkStore interface {
	shortlink.Store
	stats.ClickStore
}

func main() {
	cfg := config.Load()

	var h slog.Handler
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "text" {
		h = slog.NewTextHandler(os.Stdout, opts)
	} else {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}
	logger := slog.New(h).With("service", cfg.ServiceName)
	slog.SetDefault(logger)

	metrics.Init()

	if cfg.TracingEnabled {
		shutdown, err := trace.InitTrace(context.Background(), cfg.OtlpGrpcEndpoint, cfg.OtlpServiceName)
		if err != nil {
			slog.Error("trace init failed", "err", err)
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					slog.Error("trace shutdown failed", "err", err)
				}
			}()
		}
	} else {
		slog.Warn("tracing disabled by config", "TRACING_ENABLED", false)
	}

	// Redis is optional. Without it rate limits stay in process and history and
	// the L2 cache are switched off.
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		c, err := redisx.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			slog.Warn("redis unavailable, using local rate limits and running without history and L2 cache", "err", err)
		} else {
			redisClient = c
			defer redisClient.Close()
		}
	}
	var limiter ratelimit.Allower
	switch {
	case !cfg.RateLimitEnabled:
	case redisClient != nil:
		limiter = ratelimit.NewLimiter(redisClient)
	default:
		limiter = ratelimit.NewLocalLimiter()
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events := urlinfo.NewEvents()
	must(observe.MetricsObserver{}.Register(events))

	var history *observe.HistoryObserver
	if redisClient != nil && cfg.HistorySize > 0 {
		history = observe.NewHistoryObserver(redisClient, cfg.HistorySize, logger)
		must(history.Register(events))
	}

	var dbPool *pgxpool.Pool
	errch := make(chan error, 3)
	servers := 0
	var collector stats.Collector

	if cfg.ShortlinkEnabled {
		coder, err := shortlink.NewCoder(cfg.CodeScheme)
		if err != nil {
			log.Fatal(err)
		}

		var store shortlinkStore
		if cfg.DBDSN != "" {
			dbPool = openDB(cfg)
			defer dbPool.Close()

			var l2 *slcache.ShortlinkCache
			if redisClient != nil {
				local, err := slcache.NewLocalCache(100_000, 1<<24)
				if err != nil {
					log.Fatal(err)
				}
				l2 = slcache.NewShortlinkCache(redisClient, local)
				defer l2.Close()
			}
			bloom := slcache.NewBloomFilter(1_000_000, 0.01)
			pg := repo.NewShortlinksRepo(dbPool, l2, bloom, coder, logger)

			warmCtx, cancel := context.WithTimeout(stopCtx, 30*time.Second)
			n, err := pg.WarmBloom(warmCtx)
			cancel()
			if err != nil {
				log.Fatal(err)
			}
			slog.Info("bloom filter warmed", "codes", n)
			store = pg
		} else {
			slog.Warn("DB_DSN not set, short links are kept in memory")
			store = repo.NewMemoryRepo(coder)
		}

		if cfg.KafkaEnabled {
			slog.Info("click stats via kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
			collector = stats.NewKafkaCollector(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
			consumer := stats.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, store, logger)
			go consumer.Run(stopCtx)
			defer consumer.Close()
		} else {
			channelCollector := stats.NewChannelCollector(cfg.ClickBufferSize)
			collector = channelCollector
			go stats.NewConsumer(store, channelCollector, logger).Run(stopCtx)
		}
		defer collector.Close()

		shortener, err := shortlink.NewShortener(store, cfg.BaseURL, logger)
		if err != nil {
			log.Fatal(err)
		}
		must(shortener.Register(events))

		ts, err := auth.NewHS256Service(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
		if err != nil {
			log.Fatal(err)
		}
		var publicHandler http.Handler = shortlinkhttpapi.NewRouter(shortlinkhttpapi.Deps{
			Store:     store,
			Collector: collector,
			Tokens:    ts,
			Limiter:   limiter,
			BaseURL:   cfg.BaseURL,
			Logger:    logger,
		})
		if cfg.TracingEnabled {
			publicHandler = otelhttp.NewHandler(publicHandler, "http")
		}
		publicSrv := httpserver.New(cfg, publicHandler)
		servers++
		go func() {
			errch <- httpserver.RunWithGracefulShutdownContext(publicSrv, cfg.ShutdownTimeout, stopCtx)
		}()
		slog.Info("shortlink server listening", "addr", cfg.Addr, "base_url", cfg.BaseURL)
	}

	var filterChain urlinfo.Chain
	if len(cfg.FilterDenyHosts) > 0 || len(cfg.FilterAllowHosts) > 0 {
		filterChain = append(filterChain, filters.NewHostFilter(cfg.FilterDenyHosts, cfg.FilterAllowHosts))
	}
	if limiter != nil {
		filterChain = append(filterChain, filters.NewRateLimitFilter(limiter, cfg.URLRateLimit, cfg.URLRateWindow, logger))
	}
	var extractor urlinfo.Extractor = urlinfo.NewRelaxedExtractor()
	if cfg.StrictExtract {
		extractor = urlinfo.NewStrictExtractor()
	}

	plugin, err := urlinfo.New(events, urlinfo.Options{
		Handler:          urlinfo.NewDefaultHandler(cfg.MessageFormat),
		ShortenTimeout:   cfg.ShortenTimeout,
		HostURLEmitsOnly: cfg.HostURLEmitsOnly,
		Filter:           filterChain,
		Extractor:        extractor,
		Fetcher: fetch.New(fetch.Options{
			Timeout:   cfg.FetchTimeout,
			MaxBytes:  cfg.FetchMaxBytes,
			UserAgent: cfg.UserAgent,
			Logger:    logger,
		}),
		Logger: logger,
	})
	if err != nil {
		log.Fatal(err)
	}

	var client *chat.Client
	client = chat.NewClient(chat.Config{
		URL:            cfg.ChatURL,
		Token:          cfg.ChatToken,
		Nick:           cfg.BotNick,
		ReconnectDelay: cfg.ChatReconnectDelay,
	}, func(ctx context.Context, m chat.Message) {
		msg := urlinfo.Message{Source: m.Source, Nick: m.Nick, Channel: m.Channel, Text: m.Text}
		if err := plugin.HandleMessage(ctx, msg, client); err != nil {
			logger.Error("handle message failed", "source", msg.Target(), "err", err)
		}
	}, logger)

	adminSrv := httpserver.NewAdmin(cfg, adminMux(cfg, client, dbPool, history))
	servers++
	go func() {
		errch <- httpserver.RunWithGracefulShutdownContext(adminSrv, cfg.ShutdownTimeout, stopCtx)
	}()

	chatDone := make(chan struct{})
	go func() {
		defer close(chatDone)
		_ = client.Run(stopCtx)
	}()

	var runErr error
	for i := 0; i < servers; i++ {
		if err := <-errch; err != nil && runErr == nil {
			runErr = err
			stop()
		}
	}
	stop()
	<-chatDone

	// Let in-flight replies finish; the chat connection is gone, so their
	// sends fail fast.
	waited := make(chan struct{})
	go func() {
		plugin.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(cfg.ShutdownTimeout):
		slog.Warn("url pipelines still running at shutdown")
	}

	if runErr != nil {
		slog.Error("server failed", "err", runErr)
		os.Exit(1)
	}
}

func openDB(cfg config.Config) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := db.New(ctx, cfg.DBDSN)
	if err != nil {
		log.Fatal(err)
	}
	if err := pool.Ping(ctx); err != nil {
		log.Fatal(err)
	}
	res, err := migrate.Up(ctx, pool, migrate.Options{Dir: cfg.MigrationsDir, FS: migrations.FS})
	if err != nil {
		log.Fatal(err)
	}
	slog.Info("database ready", "migrations", res.Source, "applied", res.AppliedFiles)
	return pool
}

func adminMux(cfg config.Config, client *chat.Client, dbPool *pgxpool.Pool, history *observe.HistoryObserver) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if !client.Connected() {
			http.Error(w, "chat not connected", http.StatusServiceUnavailable)
			return
		}
		if dbPool != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
			defer cancel()
			if err := dbPool.Ping(ctx); err != nil {
				http.Error(w, "DB Ping Err", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	mux.HandleFunc("/version", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"service_name": cfg.ServiceName,
			"version":      version,
			"commit":       commit,
			"build_time":   buildTime,
			"go_version":   runtime.Version(),
		})
	})

	// /history?target=%23go&n=10
	if history != nil {
		mux.HandleFunc("/history", func(w http.ResponseWriter, r *http.Request) {
			target := r.URL.Query().Get("target")
			if target == "" {
				httpmiddleware.WriteError(w, r, http.StatusBadRequest, "target is required")
				return
			}
			n := 20
			if v := r.URL.Query().Get("n"); v != "" {
				if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
					n = parsed
				}
			}
			entries, err := history.Recent(r.Context(), target, n)
			if err != nil {
				httpmiddleware.WriteError(w, r, http.StatusInternalServerError, err.Error())
				return
			}
			httpmiddleware.WriteJSON(w, http.StatusOK, entries)
		})
	}

	if cfg.PprofEnabled {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	return mux
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
