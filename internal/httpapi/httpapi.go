// Package httpapi implements the §6 HTTP introspection surface: read-only
// routes over the loaded routing.Config, for operators and health checks.
// It never mutates the route table — reloading the routing document
// requires a process restart.
package httpapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/fixrouter/gateway/internal/routing"
	"github.com/fixrouter/gateway/pkg/broker"
)

// Server wraps an echo.Echo exposing /api/routing/*.
type Server struct {
	echo       *echo.Echo
	routingCfg *routing.Config
	health     broker.HealthChecker
	resolver   *routing.CachedResolver
}

// New builds the HTTP server. serviceName is the otelecho span service name.
// resolver is optional: when set, /match is served from it (exercising the
// §9 legacy-lookup cache) instead of scanning routingCfg directly.
func New(serviceName string, routingCfg *routing.Config, health broker.HealthChecker, resolver *routing.CachedResolver) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(otelecho.Middleware(serviceName))
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	s := &Server{echo: e, routingCfg: routingCfg, health: health, resolver: resolver}

	api := e.Group("/api/routing")
	api.GET("/routes", s.listRoutes)
	api.GET("/match", s.matchRoute)
	api.GET("/health", s.healthCheck)
	api.GET("/config", s.config)

	return s
}

// Start runs the HTTP server on addr, blocking until it errors or is
// shut down. Callers run it in a goroutine and call Shutdown to stop it.
func (s *Server) Start(addr string) error {
	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Echo exposes the underlying instance, for tests and for wiring ServeHTTP
// into an external server.
func (s *Server) Echo() *echo.Echo { return s.echo }

type routeView struct {
	RouteID           string   `json:"routeId"`
	Direction         string   `json:"type"`
	SenderCompID      string   `json:"senderCompId,omitempty"`
	TargetCompID      string   `json:"targetCompId,omitempty"`
	InputTopic        string   `json:"inputTopic,omitempty"`
	OutputTopic       string   `json:"outputTopic,omitempty"`
	DestinationCount  int      `json:"destinationCount"`
	ListenerURIs      []string `json:"listenerUris,omitempty"`
	PartitionStrategy string   `json:"partitionStrategy,omitempty"`
	DeadLetterTopic   string   `json:"deadLetterTopic,omitempty"`
}

func toRouteView(r *routing.Route) routeView {
	return routeView{
		RouteID:           r.RouteID,
		Direction:         string(r.Direction),
		SenderCompID:      r.SenderCompID,
		TargetCompID:      r.TargetCompID,
		InputTopic:        r.InputTopic,
		OutputTopic:       r.OutputTopic,
		DestinationCount:  len(r.DestinationConfigs),
		ListenerURIs:      r.ListenerURIs,
		PartitionStrategy: string(r.PartitionStrategy),
		DeadLetterTopic:   r.DeadLetterTopic,
	}
}

// GET /api/routing/routes
func (s *Server) listRoutes(c echo.Context) error {
	views := make([]routeView, 0, len(s.routingCfg.Routes))
	for i := range s.routingCfg.Routes {
		views = append(views, toRouteView(&s.routingCfg.Routes[i]))
	}
	return c.JSON(http.StatusOK, views)
}

// GET /api/routing/match?senderCompId=&targetCompId=&direction=
// Exercises the legacy sender/target fallback lookup (§4.6 point 4, §9 open
// question) directly, for operators diagnosing why a record took that path.
func (s *Server) matchRoute(c echo.Context) error {
	sender := c.QueryParam("senderCompId")
	target := c.QueryParam("targetCompId")
	dir := routing.Direction(c.QueryParam("direction"))
	if dir == "" {
		dir = routing.DirectionInput
	}
	if sender == "" || target == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "senderCompId and targetCompId are required")
	}

	var (
		route *routing.Route
		found bool
	)
	if s.resolver != nil {
		route, found = s.resolver.Resolve(c.Request().Context(), sender, target, dir)
	} else {
		route, found = s.routingCfg.RouteBySenderTarget(sender, target, dir)
	}
	if !found {
		return c.JSON(http.StatusNotFound, map[string]any{"matched": false})
	}
	return c.JSON(http.StatusOK, map[string]any{"matched": true, "route": toRouteView(route)})
}

// GET /api/routing/health
func (s *Server) healthCheck(c echo.Context) error {
	if s.health == nil {
		return c.JSON(http.StatusOK, map[string]string{"status": "UNKNOWN"})
	}
	if s.health.Healthy(c.Request().Context()) {
		return c.JSON(http.StatusOK, map[string]string{"status": "UP"})
	}
	return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "DOWN"})
}

// GET /api/routing/config
func (s *Server) config(c echo.Context) error {
	views := make([]routeView, 0, len(s.routingCfg.Routes))
	for i := range s.routingCfg.Routes {
		views = append(views, toRouteView(&s.routingCfg.Routes[i]))
	}
	return c.JSON(http.StatusOK, map[string]any{
		"defaultMaxRedeliveries": s.routingCfg.Defaults.DefaultMaxRedeliveries,
		"defaultRedeliveryDelay": s.routingCfg.Defaults.DefaultRedeliveryDelay.String(),
		"defaultDeadLetterTopic": s.routingCfg.Defaults.DefaultDeadLetterTopic,
		"routeCount":             len(s.routingCfg.Routes),
		"routes":                 views,
	})
}
