package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Mindscope/internal/domain"
	"github.com/shaiso/Mindscope/internal/telemetry"
)

// Publisher публикует StageEvent в durable-очереди.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Publish сериализует событие и сохраняет его в очереди queue.
//
// Вызывать только после того, как побочные эффекты, которые событие
// описывает, уже зафиксированы (файл загружен, кэш записан).
// Гарантия — at-least-once: после возврата nil брокер подтвердил запись,
// но повторная публикация того же события возможна.
func (p *Publisher) Publish(ctx context.Context, queue Queue, event domain.StageEvent) error {
	msg, err := newPublishing(event)
	if err != nil {
		return err
	}

	ch, err := p.conn.Channel(ctx)
	if err != nil {
		return err
	}

	confirm, err := ch.PublishWithDeferredConfirmWithContext(
		ctx,
		"",            // default exchange
		string(queue), // routing key = имя очереди
		false,         // mandatory
		false,         // immediate
		msg,
	)
	if err != nil {
		return fmt.Errorf("%w: publish to %s: %v", ErrConnection, queue, err)
	}

	// confirm == nil, если канал не в confirm-режиме
	if confirm != nil {
		acked, err := confirm.WaitContext(ctx)
		if err := confirmed(queue, acked, err); err != nil {
			return err
		}
	}

	telemetry.Published.WithLabelValues(string(queue)).Inc()

	p.logger.Debug("published event",
		"queue", queue,
		"message_id", msg.MessageId,
		"artifact_id", event.ArtifactID,
		"stage", event.Stage,
	)

	return nil
}

// newPublishing строит persistent-сообщение для события. Пустые ID и
// Timestamp заполняются, MessageId совпадает с ID события.
func newPublishing(event domain.StageEvent) (amqp.Publishing, error) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	body, err := json.Marshal(event)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal event: %w", err)
	}

	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
		MessageId:    event.ID,
		Timestamp:    event.Timestamp,
		Type:         string(event.Stage),
		Body:         body,
	}, nil
}

// confirmed переводит ответ брокера на publisher confirm в ошибку.
func confirmed(queue Queue, acked bool, err error) error {
	if err != nil {
		return fmt.Errorf("wait confirm for %s: %w", queue, err)
	}
	if !acked {
		return fmt.Errorf("%w: queue %s", ErrPublishNacked, queue)
	}
	return nil
}
