package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wonny/fxcast/internal/contracts"
	"github.com/wonny/fxcast/internal/forecast"
	"github.com/wonny/fxcast/pkg/logger"
)

// LatestReader returns the most recently committed forecast of a horizon
type LatestReader interface {
	Latest(ctx context.Context, h contracts.Horizon) (*contracts.ForecastResult, error)
}

// ForecastHandler handles forecast API endpoints
// ⭐ SSOT: Forecast API 핸들러는 이 구조체에서만
type ForecastHandler struct {
	results  LatestReader
	horizons []contracts.Horizon
	logger   *logger.Logger
}

// NewForecastHandler creates a new forecast handler
func NewForecastHandler(results LatestReader, horizons []contracts.Horizon, log *logger.Logger) *ForecastHandler {
	return &ForecastHandler{
		results:  results,
		horizons: horizons,
		logger:   log,
	}
}

// GetLatest returns the latest forecast for one horizon
// GET /api/forecasts/{horizon}
func (h *ForecastHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	hz, err := contracts.ParseHorizon(mux.Vars(r)["horizon"])
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !h.configured(hz) {
		respondError(w, http.StatusNotFound, "horizon not configured")
		return
	}

	res, err := h.results.Latest(r.Context(), hz)
	if err != nil {
		if errors.Is(err, forecast.ErrNoForecast) {
			respondError(w, http.StatusNotFound, "no forecast published")
			return
		}
		h.logger.WithError(err).WithField("horizon", hz.String()).Error("Failed to read forecast")
		respondError(w, http.StatusInternalServerError, "failed to read forecast")
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// ListLatest returns the latest forecast of every configured horizon that has one
// GET /api/forecasts
func (h *ForecastHandler) ListLatest(w http.ResponseWriter, r *http.Request) {
	out := make([]*contracts.ForecastResult, 0, len(h.horizons))
	for _, hz := range h.horizons {
		res, err := h.results.Latest(r.Context(), hz)
		if err != nil {
			if errors.Is(err, forecast.ErrNoForecast) {
				continue
			}
			h.logger.WithError(err).WithField("horizon", hz.String()).Error("Failed to read forecast")
			respondError(w, http.StatusInternalServerError, "failed to read forecast")
			return
		}
		out = append(out, res)
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"forecasts": out,
		"count":     len(out),
	})
}

func (h *ForecastHandler) configured(hz contracts.Horizon) bool {
	for _, c := range h.horizons {
		if c == hz {
			return true
		}
	}
	return false
}
