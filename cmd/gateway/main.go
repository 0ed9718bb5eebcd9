package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vibewell-gateway/internal/config"
	"vibewell-gateway/internal/log"
	"vibewell-gateway/internal/metrics"
	"vibewell-gateway/internal/otelx"
	"vibewell-gateway/middleware/ratelimit"
	"vibewell-gateway/middleware/ratelimit/application"
	"vibewell-gateway/middleware/ratelimit/domain"
	"vibewell-gateway/middleware/ratelimit/infra"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const serviceName = "vibewell-gateway"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	lvl, _ := log.ParseLevel(cfg.LogLevel)
	logger := log.New(log.Options{
		App:        serviceName,
		Level:      lvl,
		JSONFormat: cfg.LogFormat == "json",
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error(ctx, err, "gateway stopped")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger log.Logger) error {
	if cfg.UpstreamURL == "" {
		return errors.New("UPSTREAM_URL is required")
	}
	target, err := url.Parse(cfg.UpstreamURL)
	if err != nil {
		return fmt.Errorf("invalid UPSTREAM_URL: %w", err)
	}

	shutdownTracing, err := otelx.Init(ctx, cfg.OTLPEndpoint, serviceName)
	if err != nil {
		return err
	}
	defer func() {
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(c)
	}()

	var rdb redis.UniversalClient
	if cfg.NeedsRedis() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			// O limiter continua em fail-open/closed; a queda não impede a subida.
			logger.Error(ctx, err, "redis ping failed", "addr", cfg.RedisAddr)
		}
	}

	// Backend escolhido uma única vez.
	var store domain.QuotaStore
	switch cfg.Backend {
	case "redis":
		store = infra.NewRedisStore(rdb,
			infra.WithHashTag(cfg.RedisHashTag),
			infra.WithSuspiciousSuffix(cfg.RedisFlagSuffix),
		)
	default:
		mem := infra.NewMemoryStore()
		mem.StartJanitor(ctx)
		store = mem
	}

	m := metrics.New()
	dispatcher := newDispatcher(cfg, rdb, logger, m)

	mode, err := application.ParseFailureMode(cfg.FailureMode)
	if err != nil {
		return err
	}
	svc := application.NewService(store,
		application.WithFailureMode(mode),
		application.WithStoreTimeout(cfg.StoreTimeout),
		application.WithLogger(logger),
		application.WithEvents(dispatcher),
		application.WithObserver(m),
		application.WithApproachingRatio(cfg.ApproachingRatio),
	)

	policies := domain.DefaultPolicies()
	routes, err := ratelimit.ParseRoutes(cfg.Routes, cfg.DefaultPolicy, policies)
	if err != nil {
		return err
	}

	keyFn := ratelimit.DefaultKeyFunc(cfg.KeyHeader, cfg.TrustProxy)
	if cfg.JWTSecret != "" {
		keyFn = ratelimit.UserKeyFunc([]byte(cfg.JWTSecret), keyFn)
	}
	limit, err := routes.Middleware(ratelimit.Options{
		Limiter:             svc,
		KeyFn:               keyFn,
		SkipUnknown:         cfg.SkipUnknown,
		AddRateLimitHeaders: cfg.AddHeaders,
		Logger:              logger,
	})
	if err != nil {
		return err
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		// logger da requisição (policy/identifier) quando o rate limit passou por aqui
		log.FromContext(r.Context()).Error(r.Context(), err, "proxy error", "path", r.URL.Path)
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Handle("/metrics", m.Handler())
	if cfg.AdminToken != "" {
		r.Mount("/admin/ratelimit", ratelimit.AdminHandler(svc, policies, cfg.AdminToken, logger))
	}
	r.With(limit).Handle("/*", proxy)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           otelhttp.NewHandler(r, "gateway"),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.ListenAddr, err)
	}

	logger.Info(ctx, "gateway listening",
		"addr", ln.Addr().String(),
		"upstream", target.String(),
		"backend", cfg.Backend,
		"failure_mode", string(svc.FailureMode()),
		"events", cfg.Events,
		"policies", policies.Names(),
	)
	for _, rt := range routes.Routes() {
		logger.Debug(ctx, "route policy", "prefix", rt.Prefix, "policy", rt.Policy.Name)
	}

	return serve(ctx, srv, ln, 10*time.Second, dispatcher.Wait)
}

func newDispatcher(cfg config.Config, rdb redis.UniversalClient, logger log.Logger, m *metrics.RateLimitMetrics) *application.EventDispatcher {
	var sink domain.EventSink
	switch cfg.Events {
	case "none":
		return nil
	case "memory":
		sink = infra.NewMemoryEventStore()
	case "redis":
		sink = infra.FanoutSink{
			infra.LogEventSink{Logger: logger},
			infra.NewRedisEventStore(rdb,
				infra.WithEventsPrefix(cfg.EventsPrefix),
				infra.WithEventsTTL(cfg.EventsTTL),
				infra.WithStreamMaxLen(cfg.EventsStreamMaxLen),
			),
		}
	default:
		sink = infra.LogEventSink{Logger: logger}
	}

	return application.NewEventDispatcher(sink,
		application.WithPool(infra.NewChanPool(cfg.EventsMaxInFlight)),
		application.WithDispatcherLogger(logger),
		application.WithOnDrop(m.IncEventsDropped),
	)
}
