package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vibewell-gateway/internal/log"
	"vibewell-gateway/middleware/ratelimit"
	"vibewell-gateway/middleware/ratelimit/application"
	"vibewell-gateway/middleware/ratelimit/domain"
	"vibewell-gateway/middleware/ratelimit/infra"
)

func main() {
	// Exemplo: injetando o middleware diretamente no seu webserver (sem proxy)
	logger := log.New(log.Options{App: "example-server"})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store := infra.NewMemoryStore()
	store.StartJanitor(ctx)

	events := infra.NewMemoryEventStore(infra.WithRecent(100))
	dispatcher := application.NewEventDispatcher(infra.FanoutSink{events, infra.LogEventSink{Logger: logger}},
		application.WithPool(infra.NewChanPool(16)),
	)
	svc := application.NewService(store,
		application.WithLogger(logger),
		application.WithEvents(dispatcher),
	)

	policies := domain.DefaultPolicies()
	routes, err := ratelimit.ParseRoutes(
		"/login=auth,/signup=signup,/password-reset=password-reset,/payments=financial",
		domain.PolicyAPI, policies,
	)
	if err != nil {
		logger.Error(ctx, err, "routes")
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	limit, err := routes.Middleware(ratelimit.Options{
		Limiter:             svc,
		KeyHeader:           "X-Api-Key", // ou vazio para usar IP
		TrustProxy:          true,
		AddRateLimitHeaders: true,
		Logger:              logger,
	})
	if err != nil {
		logger.Error(ctx, err, "middleware")
		os.Exit(1)
	}

	root := http.NewServeMux()
	root.Handle("/admin/ratelimit/", http.StripPrefix("/admin/ratelimit",
		ratelimit.AdminHandler(svc, policies, os.Getenv("ADMIN_TOKEN"), logger)))
	root.Handle("/", limit(mux))

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info(ctx, "example server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error(ctx, err, "server error")
		os.Exit(1)
	}
	// ListenAndServe volta assim que o Shutdown começa; espera o dreno antes do Wait
	<-shutdownDone
	dispatcher.Wait()
	logger.Info(ctx, "bye", "exceeded", events.Count(domain.EventExceeded), "suspicious", events.Count(domain.EventSuspicious))
}
