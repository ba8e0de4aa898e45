// Package cli реализует инструмент командной строки Mindscope.
//
// CLI работает с Mindscope API по HTTP и не импортирует внутренние
// пакеты системы.
//
// ## Client
//
// HTTP-клиент для API: загрузка видео (multipart), чтение анализов,
// история владельца, Super Advisor. Разбирает обёртки {"data": ...}
// и {"error": {...}}.
//
//	client := cli.NewClient("http://localhost:8080")
//	upload, err := client.Upload("session.mp4", "u1")
//
// ## Output
//
// Таблицы (go-pretty) по умолчанию, JSON с флагом --json.
// Данные идут в stdout, сообщения в stderr:
//
//	mindscope analysis history u1 --json | jq .
//
// ## Commands
//
//   - upload FILE [--owner]
//   - analysis: list, show, history
//   - advise --user U QUERY
//
// Фабрики команд принимают clientFn и outputFn, чтобы Client и Output
// создавались после разбора PersistentFlags.
package cli
