package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/shaiso/Mindscope/internal/domain"
)

// advisorHistoryLimit — сколько последних сессий владельца читается для истории.
const advisorHistoryLimit = 100

// Advise отвечает Super Advisor с учётом эмоциональной истории пользователя.
// POST /api/v1/advisor
func (h *Handler) Advise(w http.ResponseWriter, r *http.Request) {
	var req AdviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	req.UserID = strings.TrimSpace(req.UserID)
	req.Query = strings.TrimSpace(req.Query)
	if req.UserID == "" || req.Query == "" {
		BadRequest(w, "user_id and query are required")
		return
	}

	history, err := h.records.ListByOwner(r.Context(), req.UserID, advisorHistoryLimit)
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	advice, err := h.advisor.Advise(r.Context(), req.Query, domain.EmotionHistory(history))
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	h.logger.Info("advice served",
		"user_id", req.UserID,
		"category", advice.DetectedCategory,
		"history_sessions", len(history),
	)

	Success(w, AdviceResponse{
		DetectedCategory: advice.DetectedCategory,
		Advices:          advice.Advices,
		HistorySessions:  len(history),
	})
}
