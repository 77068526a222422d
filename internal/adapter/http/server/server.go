package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/Temutjin2k/location-relay/internal/adapter/http/handler"
	"github.com/Temutjin2k/location-relay/internal/adapter/http/middleware"
	"github.com/Temutjin2k/location-relay/pkg/logger"
	wrap "github.com/Temutjin2k/location-relay/pkg/logger/wrapper"
	ws "github.com/Temutjin2k/location-relay/pkg/wsHub"
)

const ServiceName = "location-relay"

// Relay is everything the HTTP layer needs from the relay core.
type Relay interface {
	handler.SessionServer
	handler.LocationIngester
	handler.StatsProvider
}

type API struct {
	mux    *http.ServeMux
	server *http.Server
	routes *handlers
	m      *middleware.Middleware

	addr string
	log  logger.Logger
}

type handlers struct {
	health   *handler.Health
	relayWS  *handler.RelayWS
	location *handler.Location
}

func New(addr string, relay Relay, store handler.LocationReader, wsOpts ws.Options, log logger.Logger) *API {
	api := &API{
		mux: http.NewServeMux(),
		routes: &handlers{
			health:   handler.NewHealth(ServiceName, relay, log),
			relayWS:  handler.NewRelayWS(relay, wsOpts, log),
			location: handler.NewLocation(relay, store, log),
		},
		m:    middleware.NewMiddleware(log),
		addr: addr,
		log:  log,
	}

	setupRoutes(api.mux, api.routes)

	api.server = &http.Server{
		Addr:              api.addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return api
}

// Handler returns the routes wrapped in the middleware chain.
func (a *API) Handler() http.Handler {
	return a.m.Recover(a.m.RequestID(a.m.Logging(a.m.Metrics(ServiceName)(a.mux))))
}

// Run listens on the configured address and serves until Stop is called.
// Failing to bind is returned immediately.
func (a *API) Run(ctx context.Context) error {
	ctx = wrap.WithAction(ctx, "http_server_start")

	ln, err := net.Listen("tcp", a.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.addr, err)
	}

	a.log.Info(ctx, "started http server", "address", ln.Addr().String())
	if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

func (a *API) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	ctx = wrap.WithAction(ctx, "http_server_stop")

	a.log.Debug(ctx, "shutting down HTTP server...", "address", a.addr)
	if err := a.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("error shutting down server: %w", err)
	}
	a.log.Debug(ctx, "shutting down HTTP server completed")

	return nil
}
