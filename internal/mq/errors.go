package mq

import "errors"

// Ошибки транспорта.
var (
	// ErrConnection — брокер недоступен или соединение упало во время операции.
	ErrConnection = errors.New("broker connection error")

	// ErrClosed — соединение закрыто явно через Close.
	ErrClosed = errors.New("connection closed")

	// ErrAlreadySettled — сообщение уже подтверждено или отклонено.
	ErrAlreadySettled = errors.New("delivery already settled")

	// ErrPublishNacked — брокер не подтвердил публикацию.
	ErrPublishNacked = errors.New("publish not confirmed by broker")
)
