package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/phrazzld/owl-api/internal/redact"
)

// serve runs the HTTP server on ln until ctx is cancelled, then shuts the
// server and the application down within the configured timeout.
func (app *application) serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:           app.setupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	app.scheduler.Start()

	serveErr := make(chan error, 1)
	go func() {
		app.logger.Info("starting server", "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		app.logger.Info("shutting down server...")
	case err := <-serveErr:
		app.logger.Error("server failed", redact.Attr(err))
		runErr = fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownTimeout())
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		app.logger.Error("server shutdown failed", redact.Attr(err))
		runErr = errors.Join(runErr, fmt.Errorf("server shutdown failed: %w", err))
	}
	if err := app.shutdown(shutdownCtx); err != nil {
		app.logger.Error("application shutdown incomplete", redact.Attr(err))
		runErr = errors.Join(runErr, err)
	}

	app.logger.Info("server shutdown completed")
	return runErr
}
