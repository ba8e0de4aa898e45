package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AnonymousOwner — владелец по умолчанию, если запрос пришёл без owner_id.
const AnonymousOwner = "anonymous"

// Ключи payload, которые читают и добавляют стадии.
const (
	PayloadFilename           = "filename"
	PayloadOriginalName       = "original_name"
	PayloadAudioFilename      = "audio_filename"
	PayloadTranscriptFilename = "transcript_filename"
	PayloadAnalysisFile       = "analysis_file"
)

// StageEvent — единица обмена между стадиями pipeline.
//
// ArtifactID назначается один раз на входе и не меняется на всём пути.
// Событие — значение: копируется в очередь и из неё, не разделяется по ссылке.
type StageEvent struct {
	// ID — идентификатор конкретного сообщения (не артефакта).
	ID string `json:"id,omitempty"`

	// ArtifactID — стабильный идентификатор прогона pipeline.
	ArtifactID string `json:"artifact_id"`

	// OwnerID — кто загрузил артефакт.
	OwnerID string `json:"owner_id"`

	// Stage — стадия, которую артефакт только что прошёл.
	Stage Stage `json:"stage"`

	// Payload — данные стадии: имена файлов, ключи объектов, теги.
	Payload map[string]string `json:"payload"`

	// Timestamp — время публикации.
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent создаёт событие с новым message ID.
func NewEvent(artifactID, ownerID string, stage Stage, payload map[string]string) StageEvent {
	if ownerID == "" {
		ownerID = AnonymousOwner
	}
	if payload == nil {
		payload = map[string]string{}
	}
	return StageEvent{
		ID:         uuid.New().String(),
		ArtifactID: artifactID,
		OwnerID:    ownerID,
		Stage:      stage,
		Payload:    payload,
		Timestamp:  time.Now().UTC(),
	}
}

// Field возвращает значение поля payload и признак его наличия.
// Пустая строка считается отсутствием.
func (e *StageEvent) Field(key string) (string, bool) {
	v, ok := e.Payload[key]
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

// wireEvent — форма события на проводе. Значения payload могут быть
// как строками, так и произвольным JSON.
type wireEvent struct {
	ID         string                     `json:"id"`
	ArtifactID string                     `json:"artifact_id"`
	OwnerID    string                     `json:"owner_id"`
	Stage      Stage                      `json:"stage"`
	Payload    map[string]json.RawMessage `json:"payload"`
	Timestamp  time.Time                  `json:"timestamp"`
}

// DecodeEvent разбирает тело сообщения в типизированный StageEvent.
//
// Любая структурная проблема возвращается как ErrMalformedMessage:
// частично заполненные события дальше границы не передаются.
func DecodeEvent(body []byte) (StageEvent, error) {
	var w wireEvent
	if err := json.Unmarshal(body, &w); err != nil {
		return StageEvent{}, fmt.Errorf("%w: decode body: %v", ErrMalformedMessage, err)
	}

	if strings.TrimSpace(w.ArtifactID) == "" {
		return StageEvent{}, fmt.Errorf("%w: artifact_id is required", ErrMalformedMessage)
	}
	if !w.Stage.Valid() {
		return StageEvent{}, fmt.Errorf("%w: unknown stage %q", ErrMalformedMessage, w.Stage)
	}

	payload := make(map[string]string, len(w.Payload))
	for k, raw := range w.Payload {
		v, err := payloadValue(raw)
		if err != nil {
			return StageEvent{}, fmt.Errorf("%w: payload field %q: %v", ErrMalformedMessage, k, err)
		}
		payload[k] = v
	}

	owner := w.OwnerID
	if owner == "" {
		owner = AnonymousOwner
	}

	return StageEvent{
		ID:         w.ID,
		ArtifactID: w.ArtifactID,
		OwnerID:    owner,
		Stage:      w.Stage,
		Payload:    payload,
		Timestamp:  w.Timestamp,
	}, nil
}

// payloadValue приводит JSON-значение к строке: строки раскавычиваются,
// остальное сохраняется компактным JSON.
func payloadValue(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return "", err
	}
	return buf.String(), nil
}
