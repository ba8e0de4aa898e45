package worker

import "errors"

// Ошибки воркера.
var (
	// ErrExternalCall — внешний вызов стадии (storage, ffmpeg, API, публикация)
	// завершился ошибкой. Сообщение отклоняется без requeue.
	ErrExternalCall = errors.New("external call failed")

	// ErrWorkerStopped — обработка прервана остановкой воркера.
	// Доставка не подтверждается и будет доставлена повторно.
	ErrWorkerStopped = errors.New("worker stopped")

	// ErrNotConfigured — в Config не хватает обязательного компонента.
	ErrNotConfigured = errors.New("worker is not configured")
)
