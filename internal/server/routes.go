// Package server wires HTTP handlers into an httprouter.Router for the
// gorelay application.
package server

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Tyrowin/gorelay/internal/relay"
)

// SetupRoutes configures the router. Named routes serve health, metrics
// and the test page; every other path is handled by the relay handler.
func SetupRoutes(r *relay.Relay, cfg *Config, gatherer prometheus.Gatherer, logger *zap.Logger) *httprouter.Router {
	router := httprouter.New()
	router.GET("/healthz", HealthHandler(r))
	router.GET("/test", TestPageHandler(logger))
	router.Handler(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	router.NotFound = NewRelayHandler(r, cfg, logger)
	router.HandleMethodNotAllowed = false
	router.RedirectTrailingSlash = false
	router.RedirectFixedPath = false
	return router
}
