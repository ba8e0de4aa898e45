package repo

import "errors"

// Общие ошибки репозиториев.
var (
	// ErrNotFound — запись не найдена в БД.
	ErrNotFound = errors.New("not found")

	// ErrInvalidRecord — запись не может быть сохранена (пустые поля, не JSON).
	ErrInvalidRecord = errors.New("invalid record")
)
