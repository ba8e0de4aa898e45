package domain

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
)

// AnalysisRecord — сохранённый результат терминальной стадии.
type AnalysisRecord struct {
	// ID — идентификатор записи в document store.
	ID uuid.UUID `json:"id"`

	// OwnerID — владелец артефакта.
	OwnerID string `json:"owner_id"`

	// ArtifactID — идентификатор прогона pipeline (video_id).
	ArtifactID string `json:"artifact_id"`

	// Analysis — JSON анализа в том виде, в котором его вернула модель.
	Analysis json.RawMessage `json:"analysis"`

	// CreatedAt — время сохранения.
	CreatedAt time.Time `json:"created_at"`
}

// Analysis — ожидаемая структура ответа модели.
// Модель может вернуть лишние поля, они сохраняются в AnalysisRecord как есть.
type Analysis struct {
	Participants            map[string]string `json:"participants"`
	Utterances              []Utterance       `json:"analysis"`
	ClinicalRecommendations string            `json:"clinical_recommendations"`
}

// Utterance — одна реплика с психологической разметкой.
type Utterance struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
	Topic   string `json:"topic"`
	Emotion string `json:"emotion"`
	Subtext string `json:"subtext"`
}

// Emotions возвращает эмоции всех реплик по порядку, пропуская пустые.
func (a *Analysis) Emotions() []string {
	out := make([]string, 0, len(a.Utterances))
	for _, u := range a.Utterances {
		if u.Emotion != "" {
			out = append(out, u.Emotion)
		}
	}
	return out
}

// EmotionHistory возвращает эмоции из всех записей в хронологическом
// порядке. Записи, не разбираемые как Analysis, пропускаются.
func EmotionHistory(records []AnalysisRecord) []string {
	sorted := make([]AnalysisRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	var out []string
	for _, rec := range sorted {
		var a Analysis
		if err := json.Unmarshal(rec.Analysis, &a); err != nil {
			continue
		}
		out = append(out, a.Emotions()...)
	}
	return out
}

// Advice — ответ Super Advisor.
type Advice struct {
	DetectedCategory string   `json:"detected_category"`
	Advices          []string `json:"advices"`
}

// AdviceCategories — допустимые категории состояния.
var AdviceCategories = []string{"Happy", "Sad", "Worried", "Excited"}
