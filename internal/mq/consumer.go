package mq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Mindscope/internal/domain"
	"github.com/shaiso/Mindscope/internal/telemetry"
)

// Prefetch — не больше одного неподтверждённого сообщения на соединение.
const Prefetch = 1

const (
	minReconnectDelay = time.Second
	maxReconnectDelay = 30 * time.Second
)

// Handler — функция обработки сообщения.
//
// Handler может сам вызвать Ack или Reject. Если он этого не сделал,
// Consumer подтверждает сообщение при nil и отклоняет без requeue при ошибке.
type Handler func(ctx context.Context, msg *Delivery) error

// Delivery — доставленное сообщение с методами ack/reject.
type Delivery struct {
	// Event — провалидированное событие.
	Event domain.StageEvent

	// Raw — сырое AMQP сообщение.
	Raw amqp.Delivery

	mu      sync.Mutex
	settled bool
}

// NewDelivery оборачивает AMQP-доставку с уже разобранным событием.
func NewDelivery(raw amqp.Delivery, event domain.StageEvent) *Delivery {
	return &Delivery{Event: event, Raw: raw}
}

// Ack окончательно удаляет сообщение из очереди.
func (d *Delivery) Ack() error {
	if err := d.settle(); err != nil {
		return err
	}
	return d.Raw.Ack(false)
}

// Reject отклоняет сообщение. requeue=false — сообщение удаляется без
// повторной доставки (dead-letter очереди нет).
func (d *Delivery) Reject(requeue bool) error {
	if err := d.settle(); err != nil {
		return err
	}
	return d.Raw.Reject(requeue)
}

// Settled возвращает true, если Ack или Reject уже вызваны.
func (d *Delivery) Settled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.settled
}

func (d *Delivery) settle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.settled {
		return ErrAlreadySettled
	}
	d.settled = true
	return nil
}

// Consumer потребляет сообщения из одной очереди.
type Consumer struct {
	conn    *Connection
	logger  *slog.Logger
	queue   Queue
	handler Handler

	mu         sync.Mutex
	cancelFunc context.CancelFunc
}

// ConsumerConfig — конфигурация consumer.
type ConsumerConfig struct {
	// Queue — имя очереди.
	Queue Queue

	// Handler — обработчик сообщений.
	Handler Handler
}

// NewConsumer создаёт новый Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		conn:    conn,
		logger:  logger.With("queue", cfg.Queue),
		queue:   cfg.Queue,
		handler: cfg.Handler,
	}
}

// Start регистрирует обработчик и блокируется до отмены ctx.
// Сообщения обрабатываются строго по одному.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancelFunc = cancel
	c.mu.Unlock()
	defer cancel()

	return c.consume(ctx)
}

// consume — основной цикл потребления с переподключением.
func (c *Consumer) consume(ctx context.Context) error {
	delay := minReconnectDelay

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		deliveries, err := c.setupConsume(ctx)
		if err != nil {
			if errors.Is(err, ErrClosed) {
				return err
			}
			c.logger.Error("failed to setup consume", "error", err, "retry_in", delay)
			if !sleep(ctx, delay) {
				return ctx.Err()
			}
			delay = min(delay*2, maxReconnectDelay)
			continue
		}

		delay = minReconnectDelay
		c.logger.Info("consumer started", "prefetch", Prefetch)

		if err := c.processDeliveries(ctx, deliveries); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Неподтверждённое сообщение брокер доставит повторно
			c.logger.Warn("deliveries channel closed, reconnecting", "error", err)
		}
	}
}

// setupConsume получает живой канал и начинает потребление.
func (c *Consumer) setupConsume(ctx context.Context) (<-chan amqp.Delivery, error) {
	ch, err := c.conn.Channel(ctx)
	if err != nil {
		return nil, err
	}

	if err := ch.Qos(Prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		string(c.queue), // queue
		"",              // consumer tag (auto-generated)
		false,           // auto-ack (ack вручную)
		false,           // exclusive
		false,           // no-local
		false,           // no-wait
		nil,             // args
	)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}

	return deliveries, nil
}

// processDeliveries обрабатывает сообщения из канала.
func (c *Consumer) processDeliveries(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case raw, ok := <-deliveries:
			if !ok {
				return errors.New("deliveries channel closed")
			}

			c.handleDelivery(ctx, raw)
		}
	}
}

// handleDelivery обрабатывает одно сообщение. Все ошибки гасятся здесь:
// в логику переподключения они не попадают.
func (c *Consumer) handleDelivery(ctx context.Context, raw amqp.Delivery) {
	event, err := domain.DecodeEvent(raw.Body)
	if err != nil {
		c.logger.Error("rejecting malformed message",
			"error", err,
			"message_id", raw.MessageId,
			"body", truncate(raw.Body, 512),
		)
		c.settle(raw.Reject(false), "rejected")
		return
	}

	delivery := NewDelivery(raw, event)

	c.logger.Debug("received message",
		"message_id", event.ID,
		"artifact_id", event.ArtifactID,
		"stage", event.Stage,
	)

	err = c.invoke(ctx, delivery)

	if delivery.Settled() {
		return
	}

	// При остановке доставка остаётся неподтверждённой: брокер вернёт её
	// в очередь после закрытия канала.
	if err != nil && ctx.Err() != nil {
		c.logger.Warn("handler interrupted by shutdown, leaving unsettled",
			"message_id", event.ID,
			"artifact_id", event.ArtifactID,
			"stage", event.Stage,
			"error", err,
		)
		return
	}

	if err != nil {
		c.logger.Error("handler failed, rejecting without requeue",
			"message_id", event.ID,
			"artifact_id", event.ArtifactID,
			"stage", event.Stage,
			"error", err,
		)
		c.settle(delivery.Reject(false), "rejected")
		return
	}

	c.settle(delivery.Ack(), "acked")
}

// invoke вызывает обработчик, превращая panic в ошибку.
func (c *Consumer) invoke(ctx context.Context, d *Delivery) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return c.handler(ctx, d)
}

func (c *Consumer) settle(err error, settlement string) {
	if err != nil {
		c.logger.Warn("failed to settle delivery", "settlement", settlement, "error", err)
		return
	}
	telemetry.Deliveries.WithLabelValues(string(c.queue), settlement).Inc()
}

// Stop останавливает consumer.
func (c *Consumer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
}

// sleep ждёт d или отмены ctx. Возвращает false при отмене.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
