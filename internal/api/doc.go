// Package api содержит HTTP API сервер Mindscope.
//
// Структура:
//   - handler.go          — Handler с DI (storage, document store, publisher, advisor)
//   - routes.go           — регистрация маршрутов
//   - middleware.go       — middleware (logging, recovery, metrics)
//   - response.go         — унифицированные JSON-ответы и обработка ошибок
//   - dto.go              — Data Transfer Objects (request/response)
//   - upload_handler.go   — POST /upload, входная стадия pipeline
//   - analysis_handler.go — чтение результатов анализа
//   - advisor_handler.go  — Super Advisor
//
// API — единственная точка входа в pipeline: загрузка видео назначает
// artifact_id и публикует первое событие стадии uploaded.
package api
