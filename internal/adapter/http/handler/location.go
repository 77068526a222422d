package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/Temutjin2k/location-relay/internal/domain/models"
	"github.com/Temutjin2k/location-relay/internal/domain/types"
	"github.com/Temutjin2k/location-relay/internal/relay"
	"github.com/Temutjin2k/location-relay/pkg/logger"
	wrap "github.com/Temutjin2k/location-relay/pkg/logger/wrapper"
)

type (
	LocationIngester interface {
		Ingest(ctx context.Context, source types.EventSource, identity string, raw []byte) (models.LocationEvent, error)
	}

	LocationReader interface {
		Last(ctx context.Context, identity string) (models.LocationEvent, error)
	}
)

// Location is the HTTP fallback for drivers that cannot hold a websocket.
type Location struct {
	ingester LocationIngester
	reader   LocationReader
	l        logger.Logger
}

func NewLocation(ingester LocationIngester, reader LocationReader, l logger.Logger) *Location {
	return &Location{
		ingester: ingester,
		reader:   reader,
		l:        l,
	}
}

// UpdateLocation godoc
// @Summary      Publish a driver location
// @Description  Validates the location exactly like a websocket driver message and relays it to the driver's subscribers
// @Tags         Location
// @Accept       json
// @Produce      json
// @Param        driver_id  path      string                 true  "Driver identity"
// @Param        body       body      models.LocationUpdate  true  "Location"
// @Success      202        {object}  models.LocationEvent
// @Failure      400        {object}  map[string]any
// @Failure      422        {object}  map[string]any
// @Router       /api/drivers/{driver_id}/location [post]
func (h *Location) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	identity := r.PathValue("driver_id")
	ctx := wrap.WithDriverID(wrap.WithAction(r.Context(), types.ActionIngestLocation), identity)

	body, err := readBody(w, r)
	if err != nil {
		h.l.Warn(ctx, "failed to read request body", "err", err.Error())
		badRequestResponse(w, err.Error())
		return
	}

	event, err := h.ingester.Ingest(ctx, types.SourceHTTP, identity, body)
	if err != nil {
		var verr *relay.ValidationError
		if errors.As(err, &verr) && len(verr.Fields) > 0 {
			failedValidationResponse(w, verr.Fields)
			return
		}
		errorResponse(w, GetCode(err), err.Error())
		return
	}

	if err := writeJSON(w, http.StatusAccepted, event, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
		internalErrorResponse(w, err.Error())
	}
}

// LastLocation godoc
// @Summary      Last known location
// @Description  Returns the most recent location relayed for the driver
// @Tags         Location
// @Produce      json
// @Param        driver_id  path      string  true  "Driver identity"
// @Success      200        {object}  models.LocationEvent
// @Failure      404        {object}  map[string]any
// @Router       /api/drivers/{driver_id}/location [get]
func (h *Location) LastLocation(w http.ResponseWriter, r *http.Request) {
	identity := r.PathValue("driver_id")
	ctx := wrap.WithDriverID(wrap.WithAction(r.Context(), "get_last_location"), identity)

	event, err := h.reader.Last(ctx, identity)
	if err != nil {
		if errors.Is(err, types.ErrLocationNotFound) {
			notFoundResponse(w, err.Error())
			return
		}
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to read last location", err)
		internalErrorResponse(w, "failed to read last location")
		return
	}

	if err := writeJSON(w, http.StatusOK, event, nil); err != nil {
		h.l.Error(wrap.ErrorCtx(ctx, err), "failed to write response", err)
	}
}
