package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/Temutjin2k/location-relay/internal/domain/types"
	"github.com/Temutjin2k/location-relay/internal/relay"
	"github.com/Temutjin2k/location-relay/pkg/logger"
	wrap "github.com/Temutjin2k/location-relay/pkg/logger/wrapper"
	ws "github.com/Temutjin2k/location-relay/pkg/wsHub"
)

type SessionServer interface {
	Serve(ctx context.Context, route relay.Route, s relay.Session) error
}

// RelayWS upgrades driver and subscriber requests and hands the connection
// to the relay for its whole lifetime.
type RelayWS struct {
	relay SessionServer
	opts  ws.Options
	l     logger.Logger
}

func NewRelayWS(relay SessionServer, opts ws.Options, l logger.Logger) *RelayWS {
	return &RelayWS{
		relay: relay,
		opts:  opts,
		l:     l,
	}
}

// Handle serves the websocket endpoint for one route prefix.
//
// @Summary      Relay websocket
// @Description  /driver/{driver_id} accepts location messages; /track/{driver_id} and /subscriber/{driver_id} stream the driver's locations after a "connected" confirmation
// @Tags         Relay
// @Param        driver_id  path  string  true  "Driver identity"
// @Success      101
// @Failure      404  {object}  map[string]any
// @Router       /driver/{driver_id} [get]
// @Router       /track/{driver_id} [get]
// @Router       /subscriber/{driver_id} [get]
func (h *RelayWS) Handle(prefix string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		route := relay.NewRoute(prefix, r.PathValue("driver_id"))
		if !route.Routable() {
			h.NotFound(w, r)
			return
		}
		h.serve(w, r, route)
	}
}

// NotFound rejects every path that does not map to a relay role.
func (h *RelayWS) NotFound(w http.ResponseWriter, r *http.Request) {
	h.l.Debug(r.Context(), "unroutable path", "path", r.URL.Path)
	notFoundResponse(w, types.ErrUnroutable.Error())
}

func (h *RelayWS) serve(w http.ResponseWriter, r *http.Request, route relay.Route) {
	ctx := wrap.WithDriverID(wrap.WithAction(r.Context(), "ws_upgrade"), route.Identity)

	conn, err := ws.Upgrade(w, r, h.opts)
	if err != nil {
		// the upgrader has already answered the request
		h.l.Warn(ctx, "websocket upgrade failed", "err", err.Error())
		return
	}

	ctx = wrap.WithConnID(ctx, conn.ID())
	h.l.Debug(ctx, "websocket upgraded", "role", route.Role.String())

	if err := h.relay.Serve(ctx, route, conn); err != nil {
		if errors.Is(err, types.ErrDriverAlreadyConnected) {
			h.l.Warn(wrap.ErrorCtx(ctx, err), "driver session refused", "err", err.Error())
			return
		}
		h.l.Debug(wrap.ErrorCtx(ctx, err), "relay session ended with error", "err", err.Error())
	}
}
