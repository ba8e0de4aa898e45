package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Mindscope/internal/domain"
)

// Upload DTOs

// UploadStatusStarted — статус принятой загрузки.
const UploadStatusStarted = "processing_started"

// UploadResponse — ответ на загрузку видео.
type UploadResponse struct {
	VideoID  string `json:"video_id"`
	OwnerID  string `json:"owner_id"`
	Filename string `json:"filename"`
	Status   string `json:"status"`
}

// Analysis DTOs

// AnalysisFileResponse — объект анализа в bucket.
type AnalysisFileResponse struct {
	VideoID string `json:"video_id"`
	File    string `json:"file"`
}

// AnalysisRecordResponse — запись истории владельца.
type AnalysisRecordResponse struct {
	ID         uuid.UUID       `json:"id"`
	OwnerID    string          `json:"owner_id"`
	VideoID    string          `json:"video_id"`
	Analysis   json.RawMessage `json:"analysis"`
	AnalyzedAt time.Time       `json:"analyzed_at"`
}

// AnalysisRecordFromDomain конвертирует domain.AnalysisRecord в AnalysisRecordResponse.
func AnalysisRecordFromDomain(r domain.AnalysisRecord) AnalysisRecordResponse {
	return AnalysisRecordResponse{
		ID:         r.ID,
		OwnerID:    r.OwnerID,
		VideoID:    r.ArtifactID,
		Analysis:   r.Analysis,
		AnalyzedAt: r.CreatedAt,
	}
}

// Advisor DTOs

// AdviceRequest — запрос к Super Advisor.
type AdviceRequest struct {
	UserID string `json:"user_id"`
	Query  string `json:"query"`
}

// AdviceResponse — ответ Super Advisor.
type AdviceResponse struct {
	DetectedCategory string   `json:"detected_category"`
	Advices          []string `json:"advices"`
	HistorySessions  int      `json:"history_sessions"`
}
