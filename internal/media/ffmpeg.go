// Package media — извлечение аудиодорожки из видео через ffmpeg.
package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// DefaultBinary — имя ffmpeg в PATH.
const DefaultBinary = "ffmpeg"

// ErrExtract — ffmpeg завершился с ошибкой или не создал файл.
var ErrExtract = errors.New("audio extraction failed")

// FFmpegExtractor конвертирует видео в MP3.
type FFmpegExtractor struct {
	// Binary — путь к ffmpeg. Пусто — DefaultBinary.
	Binary string

	// Bitrate — битрейт MP3, например "128k". Пусто — по умолчанию ffmpeg.
	Bitrate string
}

// NewFFmpegExtractor создаёт экстрактор.
func NewFFmpegExtractor(binary string) *FFmpegExtractor {
	if binary == "" {
		binary = DefaultBinary
	}
	return &FFmpegExtractor{Binary: binary}
}

// Args возвращает аргументы ffmpeg для извлечения src в dst.
func (e *FFmpegExtractor) Args(src, dst string) []string {
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", src,
		"-vn",
		"-sn",
		"-dn",
		"-c:a", "libmp3lame",
	}
	if e.Bitrate != "" {
		args = append(args, "-b:a", e.Bitrate)
	}
	return append(args, dst)
}

// Extract извлекает аудиодорожку src в MP3-файл dst.
func (e *FFmpegExtractor) Extract(ctx context.Context, src, dst string) error {
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("%w: source: %w", ErrExtract, err)
	}

	binary := e.Binary
	if binary == "" {
		binary = DefaultBinary
	}

	cmd := exec.CommandContext(ctx, binary, e.Args(src, dst)...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%w: ffmpeg: %w: %s", ErrExtract, err, strings.TrimSpace(string(output)))
	}

	info, err := os.Stat(dst)
	if err != nil {
		return fmt.Errorf("%w: output: %w", ErrExtract, err)
	}
	if info.Size() == 0 {
		// видео без аудиодорожки
		return fmt.Errorf("%w: empty output %s", ErrExtract, dst)
	}
	return nil
}
