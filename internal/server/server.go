// Package server exposes the reconciler over HTTP. Lifecycle events are
// POSTed as envelope JSON and answered synchronously with the success or
// failure payload the event produced.
package server

import (
	"context"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"studioprov/internal/envelope"
	"studioprov/internal/reconciler"
	"studioprov/pkg/logging"
)

// Dispatcher routes a parsed event to its reconciler.
type Dispatcher interface {
	Dispatch(ctx context.Context, event *envelope.Event) (*envelope.Response, error)
}

// Server is the HTTP ingest endpoint for lifecycle events.
type Server struct {
	echo       *echo.Echo
	dispatcher Dispatcher
	addr       string
}

// New creates a server dispatching events received on addr.
func New(addr string, dispatcher Dispatcher) *Server {
	s := &Server{
		echo:       echo.New(),
		dispatcher: dispatcher,
		addr:       addr,
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true

	s.echo.GET("/healthz", s.health)
	s.echo.POST("/v1/events", s.handleEvent)
	return s
}

// Start runs the server until Shutdown is called. It blocks.
func (s *Server) Start() error {
	logging.Info("Server", "Listening on %s", s.addr)
	err := s.echo.Start(s.addr)
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// handleEvent parses one envelope, dispatches it, and writes the result.
// Reconciliation failures come back as 200 with a failure payload so the
// caller always learns the physical id; only malformed requests are 4xx.
func (s *Server) handleEvent(c echo.Context) error {
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, envelope.FailureResponse{Error: err.Error()})
	}

	event, err := envelope.Parse(raw)
	if err != nil {
		logging.Warn("Server", "Rejected event: %v", err)
		return c.JSON(http.StatusBadRequest, envelope.FailureResponse{Error: err.Error()})
	}
	if event.RequestID == "" {
		event.RequestID = uuid.NewString()
	}

	logging.Info("Server", "Dispatching %s %s (request %s)",
		event.RequestType, event.ResourceType, event.RequestID)

	response, err := s.dispatcher.Dispatch(c.Request().Context(), event)
	if err != nil {
		logging.Error("Server", err, "Reconciliation failed (request %s)", event.RequestID)
		return c.JSON(http.StatusOK, reconciler.Failed(event, err))
	}
	return c.JSON(http.StatusOK, response)
}
