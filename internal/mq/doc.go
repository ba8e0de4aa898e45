// Package mq — MessageBus pipeline поверх RabbitMQ.
//
// Структура:
//   - connection.go — QueueConnection процесса (ленивое подключение, проверка
//     живости перед каждой операцией, прозрачный reconnect, явное закрытие)
//   - topology.go   — durable-очереди, по одной на ребро pipeline
//   - publisher.go  — персистентная публикация StageEvent с publisher confirms
//   - consumer.go   — потребление с prefetch=1 и ручным ack/reject
//
// Семантика доставки — at-least-once. Обработчик подтверждает сообщение
// только после публикации следующего события. Ошибка обработки — reject
// без requeue; dead-letter очереди нет, отклонённое сообщение теряется
// после записи в лог.
//
// Очереди:
//   - video_processing_queue         — uploaded → audio extractor
//   - audio_processing_queue         — audio_extracted → transcriber
//   - transcription_processing_queue — transcribed → analyzer
//   - analysis_completed_queue       — analysis_completed (терминальная)
package mq
