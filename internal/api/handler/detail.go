package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/roomcommute/roomcommute/internal/api/models"
	"github.com/roomcommute/roomcommute/internal/api/response"
	"github.com/roomcommute/roomcommute/internal/commute"
	"github.com/roomcommute/roomcommute/internal/routing"
	"github.com/roomcommute/roomcommute/pkg/geo"
)

// DetailProvider builds route details. *commute.Engine implements it.
type DetailProvider interface {
	Detail(ctx context.Context, origin, dest geo.Point, recorded commute.Method) *commute.Detail
}

// DetailHandler handles GET /v1/commute/detail.
type DetailHandler struct {
	details DetailProvider
}

// NewDetailHandler creates a DetailHandler.
func NewDetailHandler(details DetailProvider) *DetailHandler {
	return &DetailHandler{details: details}
}

// GetDetail returns the route for one origin and destination. The optional
// method parameter is the method recorded when the pair was ranked.
func (h *DetailHandler) GetDetail(w http.ResponseWriter, r *http.Request) {
	var errs []models.FieldError
	origin := queryPoint(r, "startLat", "startLng", "start", &errs)
	dest := queryPoint(r, "destLat", "destLng", "dest", &errs)
	if len(errs) > 0 {
		response.BadRequest(w, r, "invalid coordinates", errs)
		return
	}

	method := commute.ParseMethod(r.URL.Query().Get("method"))
	response.JSON(w, r, http.StatusOK, h.details.Detail(r.Context(), origin, dest, method))
}

func queryPoint(r *http.Request, latKey, lngKey, field string, errs *[]models.FieldError) geo.Point {
	q := r.URL.Query()
	lat, latErr := strconv.ParseFloat(q.Get(latKey), 64)
	lng, lngErr := strconv.ParseFloat(q.Get(lngKey), 64)
	p := geo.Point{Lat: lat, Lng: lng}
	if latErr != nil || lngErr != nil || routing.ValidatePoint(p) != nil {
		*errs = append(*errs, models.FieldError{
			Field:   field,
			Message: latKey + " and " + lngKey + " must be a valid coordinate",
			Code:    "OUT_OF_RANGE",
		})
	}
	return p
}
