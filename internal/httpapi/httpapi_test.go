package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixrouter/gateway/internal/routing"
)

func newTestRoutingConfig() *routing.Config {
	return &routing.Config{
		Routes: []routing.Route{
			{RouteID: "R1", Direction: routing.DirectionInput, SenderCompID: "GTWY", TargetCompID: "EXEC", InputTopic: "fix.GTWY.EXEC.input"},
		},
		Defaults: routing.Defaults{DefaultMaxRedeliveries: 1, DefaultDeadLetterTopic: "fix-dead-letter"},
	}
}

func TestListRoutes(t *testing.T) {
	s := New("test-gateway", newTestRoutingConfig(), nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/routing/routes", nil)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var views []routeView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 1)
	assert.Equal(t, "R1", views[0].RouteID)
}

func TestMatchRouteNotFound(t *testing.T) {
	s := New("test-gateway", newTestRoutingConfig(), nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/routing/match?senderCompId=X&targetCompId=Y", nil)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMatchRouteMissingParams(t *testing.T) {
	s := New("test-gateway", newTestRoutingConfig(), nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/routing/match", nil)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthUnknownWithoutChecker(t *testing.T) {
	s := New("test-gateway", newTestRoutingConfig(), nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/routing/health", nil)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "UNKNOWN")
}
