package domain

// Stage — тег стадии pipeline, которую прошёл артефакт.
//
// Порядок строгий и только вперёд:
//
//	uploaded → audio_extracted → transcribed → analysis_completed
//
// Ветвлений, повторов и отмены нет. Артефакт, отклонённый на любой
// стадии, дальше не продвигается.
type Stage string

const (
	// StageUploaded — видео загружено в object storage.
	StageUploaded Stage = "uploaded"

	// StageAudioExtracted — из видео извлечена аудиодорожка (mp3).
	StageAudioExtracted Stage = "audio_extracted"

	// StageTranscribed — аудио расшифровано, транскрипт сохранён.
	StageTranscribed Stage = "transcribed"

	// StageAnalysisCompleted — анализ готов и сохранён. Терминальная стадия.
	StageAnalysisCompleted Stage = "analysis_completed"
)

// stageOrder — позиция стадии в pipeline.
var stageOrder = map[Stage]int{
	StageUploaded:          1,
	StageAudioExtracted:    2,
	StageTranscribed:       3,
	StageAnalysisCompleted: 4,
}

// Stages возвращает все стадии в порядке прохождения.
func Stages() []Stage {
	return []Stage{
		StageUploaded,
		StageAudioExtracted,
		StageTranscribed,
		StageAnalysisCompleted,
	}
}

// Valid проверяет, что стадия известна.
func (s Stage) Valid() bool {
	_, ok := stageOrder[s]
	return ok
}

// Order возвращает порядковый номер стадии (0 для неизвестной).
func (s Stage) Order() int {
	return stageOrder[s]
}

// Next возвращает следующую стадию.
// Для терминальной и неизвестной стадии возвращает false.
func (s Stage) Next() (Stage, bool) {
	switch s {
	case StageUploaded:
		return StageAudioExtracted, true
	case StageAudioExtracted:
		return StageTranscribed, true
	case StageTranscribed:
		return StageAnalysisCompleted, true
	default:
		return "", false
	}
}

// IsTerminal возвращает true для финальной стадии.
func (s Stage) IsTerminal() bool {
	return s == StageAnalysisCompleted
}

// String реализует fmt.Stringer.
func (s Stage) String() string {
	return string(s)
}
