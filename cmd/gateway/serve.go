package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// serve atende em ln até ctx encerrar. Só retorna depois que Shutdown drenou
// as requisições em voo; drain roda em seguida (ex: dispatcher.Wait), antes de
// o chamador fechar Redis e tracing.
func serve(ctx context.Context, srv *http.Server, ln net.Listener, grace time.Duration, drain func()) error {
	shutdownErr := make(chan error, 1)
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		shutdownErr <- srv.Shutdown(sctx)
	}()

	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	err := <-shutdownErr
	if drain != nil {
		drain()
	}
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
