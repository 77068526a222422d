package server

import (
	"net/http"

	"github.com/Temutjin2k/location-relay/docs"
	"github.com/Temutjin2k/location-relay/internal/relay"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
)

// setupRoutes - setups http routes
func setupRoutes(mux *http.ServeMux, routes *handlers) {
	// System Health
	mux.HandleFunc("GET /health", routes.health.HealthCheck)

	setupSwaggerRoutes(mux)
	setupMetricsRoute(mux)
	setupRelayRoutes(mux, routes)
	setupLocationRoutes(mux, routes)

	// anything else is not a relay role
	mux.HandleFunc("/", routes.relayWS.NotFound)
}

// setupRelayRoutes setups the websocket endpoints
func setupRelayRoutes(mux *http.ServeMux, routes *handlers) {
	mux.HandleFunc("GET /driver/{driver_id}", routes.relayWS.Handle(relay.PrefixDriver))         // Driver publishes locations
	mux.HandleFunc("GET /track/{driver_id}", routes.relayWS.Handle(relay.PrefixTrack))           // Subscriber follows a driver
	mux.HandleFunc("GET /subscriber/{driver_id}", routes.relayWS.Handle(relay.PrefixSubscriber)) // Alias of /track
}

// setupLocationRoutes setups the HTTP fallback for drivers
func setupLocationRoutes(mux *http.ServeMux, routes *handlers) {
	mux.HandleFunc("POST /api/drivers/{driver_id}/location", routes.location.UpdateLocation) // Publish a location
	mux.HandleFunc("GET /api/drivers/{driver_id}/location", routes.location.LastLocation)    // Last known location
}

// setupSwaggerRoutes configures the Swagger UI endpoint
func setupSwaggerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/swagger/", httpSwagger.Handler(httpSwagger.InstanceName(docs.InstanceName)))
}

// setupMetricsRoute configures the Prometheus metrics endpoint
func setupMetricsRoute(mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.Handler())
}
