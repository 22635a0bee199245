package statusapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/petems/eqcoach/internal/app"
)

// Controller is the session surface the API exposes, satisfied by *app.App.
type Controller interface {
	StartSession()
	StopSession()
	ClearError()
	Status() app.Status
	LastFrame() []byte
}

// Server serves session status and control over HTTP and pushes status
// changes to WebSocket clients.
type Server struct {
	ctrl Controller
	hub  *Hub
	echo *echo.Echo
	log  zerolog.Logger
}

func New(ctrl Controller, log zerolog.Logger) *Server {
	log = log.With().Str("component", "statusapi").Logger()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		ctrl: ctrl,
		hub:  NewHub(log),
		echo: e,
		log:  log,
	}
	s.RegisterRoutes(e.Group(""))
	return s
}

// Hub returns the WebSocket fan-out, which doubles as an app.StatusUpdater.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) RegisterRoutes(g *echo.Group) {
	g.GET("/status", s.handleStatus)
	g.GET("/frame", s.handleFrame)
	g.POST("/session/start", s.handleStart)
	g.POST("/session/stop", s.handleStop)
	g.DELETE("/error", s.handleClearError)
	g.GET("/ws", s.handleWS)
}

func (s *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleFrame(c echo.Context) error {
	frame := s.ctrl.LastFrame()
	if frame == nil {
		return c.NoContent(http.StatusNoContent)
	}
	c.Response().Header().Set("Cache-Control", "no-store")
	return c.Blob(http.StatusOK, "image/jpeg", frame)
}

func (s *Server) handleStart(c echo.Context) error {
	s.ctrl.StartSession()
	return c.JSON(http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleStop(c echo.Context) error {
	s.ctrl.StopSession()
	return c.JSON(http.StatusOK, s.ctrl.Status())
}

func (s *Server) handleClearError(c echo.Context) error {
	s.ctrl.ClearError()
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleWS(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return err
	}
	s.hub.Serve(ws, s.ctrl.Status())
	return nil
}

// Start listens on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.log.Info().Str("addr", addr).Msg("Status API listening")
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.echo.Shutdown(ctx)
}
