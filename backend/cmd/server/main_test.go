package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"circlenet/backend/internal/api"
	"circlenet/backend/internal/metrics"
	"circlenet/backend/pkg/config"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

func TestApplicationClose_ReverseOrder(t *testing.T) {
	var order []string
	app := &application{}
	app.closers = append(app.closers,
		func() { order = append(order, "neo4j") },
		func() { order = append(order, "postgres") },
		func() { order = append(order, "redis") },
	)

	app.close()

	assert.Equal(t, []string{"redis", "postgres", "neo4j"}, order)
}

func TestBuild_FailsWithoutGraph(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	app, err := build(ctx, &config.Config{
		Neo4jURI:      "bolt://127.0.0.1:1",
		Neo4jUser:     "neo4j",
		Neo4jPassword: "password",
	})
	assert.Error(t, err)
	assert.Nil(t, app)
}

func TestHealthEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := api.NewRouter(api.Deps{
		Health: map[string]api.Pinger{"neo4j": okPinger{}},
	}, api.Options{Collector: metrics.NewCollector("circlenet_main_test")})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/metrics", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "circlenet_main_test_http_requests_total")
}
