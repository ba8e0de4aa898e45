package domain

import (
	"fmt"
	"maps"
)

// Имена durable-очередей, по одной на каждое ребро pipeline.
const (
	QueueVideo             = "video_processing_queue"
	QueueAudio             = "audio_processing_queue"
	QueueTranscription     = "transcription_processing_queue"
	QueueAnalysisCompleted = "analysis_completed_queue"
)

// Contract описывает одну стадию: какое событие она принимает,
// какие поля payload читает, какие добавляет и куда отправляет результат.
//
// Контракты — статическая таблица (см. Contracts), не runtime-объекты.
type Contract struct {
	// Name — имя стадии для логов и метрик.
	Name string

	// Expects — стадия-предшественник. Пусто для входной стадии.
	Expects Stage

	// Consumes — очередь, из которой стадия читает. Пусто для входной стадии.
	Consumes string

	// Requires — обязательные поля payload входного события.
	Requires []string

	// Adds — поля, которые стадия добавляет в payload следующего события.
	Adds []string

	// Emits — стадия, которую получает следующее событие.
	Emits Stage

	// Next — очередь для следующего события.
	Next string
}

// Контракты стадий.
var (
	// EntryContract — HTTP upload: назначает artifact_id и owner_id.
	EntryContract = Contract{
		Name:     "upload",
		Requires: []string{PayloadFilename},
		Adds:     []string{PayloadFilename},
		Emits:    StageUploaded,
		Next:     QueueVideo,
	}

	// ExtractorContract — извлечение аудио из видео.
	ExtractorContract = Contract{
		Name:     "audio_extractor",
		Expects:  StageUploaded,
		Consumes: QueueVideo,
		Requires: []string{PayloadFilename},
		Adds:     []string{PayloadAudioFilename},
		Emits:    StageAudioExtracted,
		Next:     QueueAudio,
	}

	// TranscriberContract — расшифровка аудио.
	TranscriberContract = Contract{
		Name:     "transcriber",
		Expects:  StageAudioExtracted,
		Consumes: QueueAudio,
		Requires: []string{PayloadAudioFilename},
		Adds:     []string{PayloadTranscriptFilename},
		Emits:    StageTranscribed,
		Next:     QueueTranscription,
	}

	// AnalyzerContract — психологический анализ транскрипта. Терминальная стадия:
	// результат сохраняется в document store, событие уходит в очередь завершённых.
	AnalyzerContract = Contract{
		Name:     "analyzer",
		Expects:  StageTranscribed,
		Consumes: QueueTranscription,
		Requires: []string{PayloadTranscriptFilename},
		Adds:     []string{PayloadAnalysisFile},
		Emits:    StageAnalysisCompleted,
		Next:     QueueAnalysisCompleted,
	}
)

// Contracts возвращает таблицу контрактов в порядке pipeline.
func Contracts() []Contract {
	return []Contract{EntryContract, ExtractorContract, TranscriberContract, AnalyzerContract}
}

// ContractFor возвращает контракт воркера, принимающего события со стадией s.
func ContractFor(s Stage) (Contract, bool) {
	for _, c := range Contracts() {
		if c.Expects != "" && c.Expects == s {
			return c, true
		}
	}
	return Contract{}, false
}

// IsEntry возвращает true для входной стадии.
func (c Contract) IsEntry() bool {
	return c.Expects == ""
}

// Queues возвращает очереди, которые использует процесс с этим контрактом.
func (c Contract) Queues() []string {
	if c.Consumes == "" {
		return []string{c.Next}
	}
	return []string{c.Consumes, c.Next}
}

// Accept проверяет входное событие: стадия должна совпадать с ожидаемой,
// обязательные поля — присутствовать. Ошибка всегда ErrMalformedMessage.
func (c Contract) Accept(e StageEvent) error {
	if e.ArtifactID == "" {
		return fmt.Errorf("%w: artifact_id is required", ErrMalformedMessage)
	}
	if e.Stage != c.Expects {
		return fmt.Errorf("%w: %w: %s expects %q, got %q",
			ErrMalformedMessage, ErrUnexpectedStage, c.Name, c.Expects, e.Stage)
	}
	return c.requireFields(e)
}

// Successor строит следующее событие для того же артефакта.
// added должен содержать все поля из Adds.
func (c Contract) Successor(e StageEvent, added map[string]string) (StageEvent, error) {
	if c.Emits == "" {
		return StageEvent{}, ErrTerminalStage
	}
	produced := StageEvent{Payload: added}
	for _, key := range c.Adds {
		if _, ok := produced.Field(key); !ok {
			return StageEvent{}, fmt.Errorf("%s: %w: %s", c.Name, ErrMissingField, key)
		}
	}

	return NewEvent(e.ArtifactID, e.OwnerID, c.Emits, maps.Clone(added)), nil
}

// Entry строит первое событие pipeline для нового артефакта.
func (c Contract) Entry(artifactID, ownerID string, payload map[string]string) (StageEvent, error) {
	if !c.IsEntry() {
		return StageEvent{}, fmt.Errorf("%s is not an entry contract", c.Name)
	}
	if artifactID == "" {
		return StageEvent{}, fmt.Errorf("%w: artifact_id is required", ErrMalformedMessage)
	}
	if err := c.requireFields(StageEvent{Payload: payload}); err != nil {
		return StageEvent{}, err
	}
	return NewEvent(artifactID, ownerID, c.Emits, maps.Clone(payload)), nil
}

// requireFields проверяет обязательные поля через Field: значение из
// одних пробелов считается отсутствующим.
func (c Contract) requireFields(e StageEvent) error {
	for _, key := range c.Requires {
		if _, ok := e.Field(key); !ok {
			return fmt.Errorf("%w: %w: %s", ErrMalformedMessage, ErrMissingField, key)
		}
	}
	return nil
}
