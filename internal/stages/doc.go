// Package stages — работа стадий pipeline: реализации worker.Processor.
//
//   - AudioExtraction: видео → MP3 (ffmpeg)
//   - Transcription: MP3 → JSON-транскрипт с разметкой спикеров
//   - Analysis: транскрипт → психологический анализ (через кэш), запись в
//     document store
//
// Каждая стадия работает с локальными файлами в собственном каталоге
// SCRATCH_DIR/<artifact_id>, который удаляется после сообщения. Две
// стадии на одной машине не пересекаются по путям.
package stages
