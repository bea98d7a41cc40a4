package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/roomcommute/roomcommute/internal/api/models"
	"github.com/roomcommute/roomcommute/internal/api/response"
	"github.com/roomcommute/roomcommute/internal/ranking"
)

const (
	// defaultPageBatchSize is the batchSize used when the query omits it.
	defaultPageBatchSize = 10

	maxBodyBytes = 64 << 10
)

// Recommender ranks candidates. *ranking.Service implements it.
type Recommender interface {
	Recommend(ctx context.Context, req ranking.Request) ([]ranking.RankedCandidate, error)
	RecommendPage(ctx context.Context, req ranking.Request, cursor, batchSize int) (*ranking.Page, error)
}

// RecommendationHandler handles the recommendation endpoints.
type RecommendationHandler struct {
	recommender Recommender
	logger      zerolog.Logger
}

// NewRecommendationHandler creates a RecommendationHandler.
func NewRecommendationHandler(recommender Recommender, logger zerolog.Logger) *RecommendationHandler {
	return &RecommendationHandler{
		recommender: recommender,
		logger:      logger.With().Str("component", "recommendation_handler").Logger(),
	}
}

// Recommend handles POST /v1/recommendations.
func (h *RecommendationHandler) Recommend(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRecommendation(w, r)
	if !ok {
		return
	}

	items, err := h.recommender.Recommend(r.Context(), req.ToRankingRequest())
	if err != nil {
		h.logger.Error().Err(err).Str("district", req.District).Msg("recommendation failed")
		response.InternalError(w, r, "failed to compute recommendations")
		return
	}

	response.JSON(w, r, http.StatusOK, models.RecommendationResponse{Items: items})
}

// RecommendPage handles POST /v1/recommendations/paged?cursor=&batchSize=.
func (h *RecommendationHandler) RecommendPage(w http.ResponseWriter, r *http.Request) {
	var fieldErrs []models.FieldError
	cursor, err := queryInt(r, "cursor", 0)
	if err != nil {
		fieldErrs = append(fieldErrs, models.FieldError{Field: "cursor", Message: "must be an integer", Code: "INVALID"})
	}
	batchSize, err := queryInt(r, "batchSize", defaultPageBatchSize)
	if err != nil {
		fieldErrs = append(fieldErrs, models.FieldError{Field: "batchSize", Message: "must be an integer", Code: "INVALID"})
	}
	if len(fieldErrs) > 0 {
		response.BadRequest(w, r, "invalid query parameters", fieldErrs)
		return
	}

	req, ok := decodeRecommendation(w, r)
	if !ok {
		return
	}

	page, err := h.recommender.RecommendPage(r.Context(), req.ToRankingRequest(), cursor, batchSize)
	if err != nil {
		h.logger.Error().Err(err).Str("district", req.District).Int("cursor", cursor).Msg("paged recommendation failed")
		response.InternalError(w, r, "failed to compute recommendations")
		return
	}

	response.JSON(w, r, http.StatusOK, page)
}

func decodeRecommendation(w http.ResponseWriter, r *http.Request) (*models.RecommendationRequest, bool) {
	var req models.RecommendationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return nil, false
	}
	if errs := req.Validate(); len(errs) > 0 {
		response.BadRequest(w, r, "request validation failed", errs)
		return nil, false
	}
	return &req, true
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
