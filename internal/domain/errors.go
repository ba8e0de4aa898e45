package domain

import "errors"

// Ошибки контракта стадий.
var (
	// ErrMalformedMessage — событие не прошло структурную проверку:
	// тело не парсится, нет artifact_id, неизвестная или неожиданная стадия,
	// отсутствуют обязательные поля payload. Повтор не имеет смысла.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrUnexpectedStage — стадия события не совпадает с ожидаемым предшественником.
	ErrUnexpectedStage = errors.New("unexpected stage")

	// ErrMissingField — в payload нет обязательного поля.
	ErrMissingField = errors.New("missing required field")

	// ErrTerminalStage — у терминальной стадии нет следующей.
	ErrTerminalStage = errors.New("terminal stage has no successor")
)
