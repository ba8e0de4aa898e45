package storage

import (
	"path"
	"strings"
)

// Ключи объектов выводятся из artifact_id, поэтому повторная обработка
// того же артефакта перезаписывает те же объекты.

// derivedExts — расширения ключей, которые pipeline пишет сам в тот же bucket.
var derivedExts = map[string]bool{"mp3": true, "json": true}

// VideoKey — ключ загруженного видео: <id>.<ext>. Расширение, совпадающее
// с AudioKey или TranscriptKey, заменяется на mp4, иначе видео и
// производные файлы делили бы один объект.
func VideoKey(artifactID, originalName string) string {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(originalName)), ".")
	if ext == "" || derivedExts[ext] {
		ext = "mp4"
	}
	return artifactID + "." + ext
}

// AudioKey — ключ извлечённого аудио.
func AudioKey(artifactID string) string {
	return artifactID + ".mp3"
}

// TranscriptKey — ключ JSON-транскрипта.
func TranscriptKey(artifactID string) string {
	return artifactID + ".json"
}

// AnalysisKey — ключ JSON-анализа в bucket анализов.
func AnalysisKey(artifactID string) string {
	return artifactID + "-analysis.json"
}

// ArtifactFromAnalysisKey обратна AnalysisKey.
func ArtifactFromAnalysisKey(key string) (string, bool) {
	id, ok := strings.CutSuffix(key, "-analysis.json")
	return id, ok && id != ""
}
