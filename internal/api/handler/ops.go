// Package handler provides HTTP handlers for the RoomCommute API.
package handler

import (
	"net/http"
	"time"

	"github.com/roomcommute/roomcommute/internal/api/models"
	"github.com/roomcommute/roomcommute/internal/api/response"
	"github.com/roomcommute/roomcommute/internal/provider/resilience"
)

// ProviderHealthSource reports the health of the provider clients.
// *resilience.Registry implements it.
type ProviderHealthSource interface {
	All() []*resilience.ProviderHealth
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	providers ProviderHealthSource
}

// NewOpsHandler creates a new OpsHandler. A nil providers reports ready.
func NewOpsHandler(version, buildTime string, providers ProviderHealthSource) *OpsHandler {
	return &OpsHandler{
		version:   version,
		buildTime: buildTime,
		providers: providers,
	}
}

// HealthCheck handles GET /v1/health.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]any{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	})
}

// ReadinessCheck handles GET /v1/ready. It reports every provider's breaker
// state and answers 503 while any breaker is open.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	ready := models.Readiness{
		Status:    models.HealthStatusOK,
		Time:      models.Timestamp(time.Now()),
		Providers: []models.ProviderStatus{},
	}

	if h.providers != nil {
		for _, p := range h.providers.All() {
			status := providerStatus(p)
			switch status.Status {
			case models.HealthStatusFail:
				ready.Status = models.HealthStatusFail
			case models.HealthStatusDegraded:
				if ready.Status == models.HealthStatusOK {
					ready.Status = models.HealthStatusDegraded
				}
			}
			ready.Providers = append(ready.Providers, status)
		}
	}

	code := http.StatusOK
	if ready.Status == models.HealthStatusFail {
		code = http.StatusServiceUnavailable
	}
	response.JSON(w, r, code, ready)
}

func providerStatus(p *resilience.ProviderHealth) models.ProviderStatus {
	s := models.ProviderStatus{
		Provider:     p.Name,
		Status:       models.HealthStatusOK,
		CircuitState: resilience.StateName(p.CircuitState),
	}
	switch {
	case p.IsUnhealthy():
		s.Status = models.HealthStatusFail
	case p.IsDegraded():
		s.Status = models.HealthStatusDegraded
	}
	if p.LastSuccessAt != nil {
		ts := models.Timestamp(*p.LastSuccessAt)
		s.LastSuccessAt = &ts
	}
	if p.LastFailureAt != nil {
		ts := models.Timestamp(*p.LastFailureAt)
		s.LastFailureAt = &ts
	}
	if p.LastError != "" {
		msg := p.LastError
		s.Message = &msg
	}
	return s
}
