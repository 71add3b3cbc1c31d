// Package app provides application lifecycle management for the school gate.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/hit-sharq/kasikeu-boys-high-school/internal/config"
)

// SchoolGateApp encapsulates all components needed to run the gate.
// It provides lifecycle management and graceful shutdown capabilities.
type SchoolGateApp struct {
	config     *config.Config
	components *AppComponents
	httpServer *http.Server

	// Lifecycle management
	ctx        context.Context
	cancelFunc context.CancelFunc
}

// Start starts the HTTP server. It blocks until the server stops or fails.
func (app *SchoolGateApp) Start() error {
	ln, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	return app.Serve(ln)
}

// Serve serves HTTP on ln until Stop is called.
func (app *SchoolGateApp) Serve(ln net.Listener) error {
	slog.Info("Server listening", "address", ln.Addr().String())
	if err := app.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// Stop gracefully stops the application with the given timeout. In-flight
// requests are drained before the user store is closed.
func (app *SchoolGateApp) Stop(timeout time.Duration) error {
	slog.Info("Shutting down server...")

	if app.cancelFunc != nil {
		app.cancelFunc()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server forced to shutdown: %w", err))
	}

	if app.components != nil && app.components.Users != nil {
		if err := app.components.Users.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close user store: %w", err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Info("Server shutdown complete")
	return nil
}

// GetConfig returns the application configuration
func (app *SchoolGateApp) GetConfig() *config.Config {
	return app.config
}

// GetHTTPServer returns the HTTP server
func (app *SchoolGateApp) GetHTTPServer() *http.Server {
	return app.httpServer
}

// Components returns the wired components
func (app *SchoolGateApp) Components() *AppComponents {
	return app.components
}
