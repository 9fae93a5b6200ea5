package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/wonny/fxcast/internal/readiness"
	"github.com/wonny/fxcast/pkg/logger"
)

// Evaluator computes a readiness report from current history
type Evaluator interface {
	Evaluate(ctx context.Context, now time.Time) (*readiness.Report, error)
}

// ReadinessHandler handles readiness endpoints
// 평가 결과는 저장하지 않고 요청마다 재계산
type ReadinessHandler struct {
	evaluator Evaluator
	logger    *logger.Logger
	now       func() time.Time
}

// NewReadinessHandler creates a new readiness handler
func NewReadinessHandler(ev Evaluator, log *logger.Logger) *ReadinessHandler {
	return &ReadinessHandler{
		evaluator: ev,
		logger:    log,
		now:       time.Now,
	}
}

// GetReport returns the full assessment
// GET /api/readiness
func (h *ReadinessHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.evaluate(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, rep)
}

// GetStatus returns the LEVEL|timestamp line for external polling
// GET /api/readiness/status
func (h *ReadinessHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.evaluate(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(rep.StatusLine()))
}

func (h *ReadinessHandler) evaluate(w http.ResponseWriter, r *http.Request) (*readiness.Report, bool) {
	rep, err := h.evaluator.Evaluate(r.Context(), h.now().UTC())
	if err != nil {
		h.logger.WithError(err).Error("Failed to evaluate readiness")
		respondError(w, http.StatusInternalServerError, "failed to evaluate readiness")
		return nil, false
	}
	return rep, true
}
