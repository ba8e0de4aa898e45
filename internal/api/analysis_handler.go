package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/shaiso/Mindscope/internal/domain"
	"github.com/shaiso/Mindscope/internal/storage"
)

// ListAnalyses возвращает список готовых анализов.
// GET /api/v1/analyses
func (h *Handler) ListAnalyses(w http.ResponseWriter, r *http.Request) {
	keys, err := h.analyses.List(r.Context(), "")
	if HandleError(w, h.logger, err, "") {
		return
	}

	result := make([]AnalysisFileResponse, 0, len(keys))
	for _, key := range keys {
		id, ok := storage.ArtifactFromAnalysisKey(key)
		if !ok {
			continue
		}
		result = append(result, AnalysisFileResponse{VideoID: id, File: key})
	}

	List(w, result, len(result))
}

// GetAnalysis возвращает анализ одного видео.
// GET /api/v1/analyses/{id}
func (h *Handler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		BadRequest(w, "video id is required")
		return
	}

	data, err := h.analyses.Download(r.Context(), storage.AnalysisKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		// Blob мог не сохраниться, а запись в document store есть.
		var rec *domain.AnalysisRecord
		rec, err = h.records.GetByArtifact(r.Context(), id)
		if err == nil {
			data = rec.Analysis
		}
	}
	if HandleError(w, h.logger, err, "analysis not found") {
		return
	}

	if !json.Valid(data) {
		InternalError(w, h.logger, errInvalidStoredAnalysis(id))
		return
	}

	Success(w, json.RawMessage(data))
}

// ListOwnerAnalyses возвращает историю анализов владельца, новые первыми.
// GET /api/v1/owners/{owner}/analyses?limit=...
func (h *Handler) ListOwnerAnalyses(w http.ResponseWriter, r *http.Request) {
	owner := r.PathValue("owner")

	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			BadRequest(w, "invalid limit")
			return
		}
		limit = n
	}

	records, err := h.records.ListByOwner(r.Context(), owner, limit)
	if HandleError(w, h.logger, err, "") {
		return
	}

	result := make([]AnalysisRecordResponse, len(records))
	for i, rec := range records {
		result[i] = AnalysisRecordFromDomain(rec)
	}

	List(w, result, len(result))
}

func errInvalidStoredAnalysis(id string) error {
	return fmt.Errorf("stored analysis for %s is not valid JSON", id)
}
