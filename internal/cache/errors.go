package cache

import "errors"

var (
	// ErrUnavailable — хранилище кэша недоступно. Наружу не уходит:
	// Cache превращает её в промах.
	ErrUnavailable = errors.New("cache unavailable")

	// ErrFingerprint — вход не удалось привести к канонической форме.
	ErrFingerprint = errors.New("fingerprint failed")
)
