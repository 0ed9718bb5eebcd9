package main

import (
	"testing"

	"vibewell-gateway/internal/config"
	"vibewell-gateway/internal/log"
	"vibewell-gateway/internal/metrics"
	"vibewell-gateway/middleware/ratelimit/domain"
)

func TestNewDispatcher_NoneDisablesEvents(t *testing.T) {
	cfg := config.Config{Events: "none", EventsMaxInFlight: 1}
	if d := newDispatcher(cfg, nil, log.Nop(), metrics.New()); d != nil {
		t.Fatalf("expected no dispatcher when events are disabled")
	}
}

func TestNewDispatcher_LogSinkDelivers(t *testing.T) {
	cfg := config.Config{Events: "log", EventsMaxInFlight: 4}
	d := newDispatcher(cfg, nil, log.Nop(), metrics.New())
	if d == nil {
		t.Fatalf("expected a dispatcher")
	}
	d.Dispatch(domain.Event{Kind: domain.EventExceeded, Policy: "auth"})
	d.Wait()
}
