// internal/query/server.go
package query

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"collision-hub/internal/apperr"
	"collision-hub/internal/ingest"
	"collision-hub/internal/utils"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
)

const maxReportBytes = 1 << 20

// Server is the public REST surface: state queries plus report ingress.
type Server struct {
	echo    *echo.Echo
	addr    string
	service *Service
	ingest  *ingest.Handler
}

// NewServer wires the routes. ing may be nil to disable POST /report.
func NewServer(addr string, svc *Service, ing *ingest.Handler) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = CustomHTTPErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			utils.Logger.WithFields(logrus.Fields{
				"method":    v.Method,
				"uri":       v.URI,
				"status":    v.Status,
				"latency":   v.Latency.String(),
				"remote_ip": v.RemoteIP,
			}).Debug("HTTP request")
			return nil
		},
	}))

	s := &Server{echo: e, addr: addr, service: svc, ingest: ing}

	e.GET("/", s.index)
	e.GET("/states", s.listStates)
	e.GET("/state/:device_id", s.getState)
	e.GET("/state/", s.getState)
	if ing != nil {
		e.POST("/report", s.postReport)
	}
	return s
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	utils.Logger.Infof("Query API listening on %s", s.addr)
	if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) index(c echo.Context) error {
	return c.String(http.StatusOK, "Collision Monitor")
}

func (s *Server) getState(c echo.Context) error {
	state, err := s.service.GetState(c.Param("device_id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, state)
}

func (s *Server) listStates(c echo.Context) error {
	return c.JSON(http.StatusOK, s.service.ListStates())
}

func (s *Server) postReport(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxReportBytes))
	if err != nil {
		return apperr.NewDeserializationFailure("Unable to read request body", err)
	}
	applied, err := s.ingest.Ingest(body)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"status":      "accepted",
		"applied":     applied,
		"received_at": time.Now().UnixMilli(),
	})
}
