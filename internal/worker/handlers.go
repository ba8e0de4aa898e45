package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shaiso/Mindscope/internal/domain"
	"github.com/shaiso/Mindscope/internal/mq"
	"github.com/shaiso/Mindscope/internal/telemetry"
)

// Handle обрабатывает одно доставленное событие и сам его подтверждает.
//
// Ack вызывается только после успешной публикации следующего события.
// В остальных случаях Reject без requeue. Исключение: работа прервана
// остановкой воркера. Тогда доставка остаётся неподтверждённой, брокер
// вернёт её в очередь после закрытия соединения.
func (w *Worker) Handle(ctx context.Context, d *mq.Delivery) error {
	start := time.Now()
	event := d.Event

	logger := telemetry.WithArtifactID(w.logger, event.ArtifactID).With(
		"message_id", event.ID,
		"owner_id", event.OwnerID,
	)
	ctx = telemetry.WithLogger(ctx, logger)

	defer func() {
		telemetry.StageDuration.WithLabelValues(w.contract.Name).Observe(time.Since(start).Seconds())
	}()

	next, err := w.process(ctx, event)
	if err != nil && w.interrupted(ctx, err) {
		telemetry.StageMessages.WithLabelValues(w.contract.Name, telemetry.OutcomeInterrupted).Inc()
		logger.Warn("stage interrupted by shutdown, leaving delivery for redelivery",
			"received_stage", event.Stage,
			"error", err,
		)
		return fmt.Errorf("%w: %w", ErrWorkerStopped, err)
	}
	if err != nil {
		outcome := telemetry.OutcomeFailed
		if errors.Is(err, domain.ErrMalformedMessage) {
			outcome = telemetry.OutcomeMalformed
		}
		telemetry.StageMessages.WithLabelValues(w.contract.Name, outcome).Inc()

		attrs := []any{
			"outcome", outcome,
			"received_stage", event.Stage,
			"payload", event.Payload,
			"error", err,
		}
		if owner, ok := misrouted(err, event.Stage); ok {
			attrs = append(attrs, "expected_consumer", owner.Name, "expected_queue", owner.Consumes)
		}
		logger.Error("stage failed, rejecting", attrs...)
		if rerr := d.Reject(false); rerr != nil {
			logger.Warn("failed to reject delivery", "error", rerr)
		}
		return err
	}

	if err := d.Ack(); err != nil {
		// Событие уже опубликовано: при повторной доставке стадия отработает
		// ещё раз, что допустимо для at-least-once.
		logger.Warn("failed to ack delivery", "error", err)
	}

	telemetry.StageMessages.WithLabelValues(w.contract.Name, telemetry.OutcomeCompleted).Inc()
	logger.Info("stage completed",
		"emitted", next.Stage,
		"next_queue", w.contract.Next,
		"duration", time.Since(start),
	)
	return nil
}

// process выполняет accept → process → successor → publish.
func (w *Worker) process(ctx context.Context, event domain.StageEvent) (domain.StageEvent, error) {
	if err := w.contract.Accept(event); err != nil {
		return domain.StageEvent{}, err
	}

	added, err := w.processor.Process(ctx, event)
	if err != nil {
		return domain.StageEvent{}, fmt.Errorf("%w: %s: %w", ErrExternalCall, w.contract.Name, err)
	}

	next, err := w.contract.Successor(event, added)
	if err != nil {
		return domain.StageEvent{}, fmt.Errorf("%w: %s: %w", ErrExternalCall, w.contract.Name, err)
	}

	if err := w.publisher.Publish(ctx, mq.Queue(w.contract.Next), next); err != nil {
		return domain.StageEvent{}, fmt.Errorf("%w: publish %s: %w", ErrExternalCall, w.contract.Next, err)
	}

	return next, nil
}

// interrupted сообщает, что ошибка вызвана остановкой воркера, а не самим
// событием. Некорректное событие отклоняется всегда.
func (w *Worker) interrupted(ctx context.Context, err error) bool {
	if errors.Is(err, domain.ErrMalformedMessage) {
		return false
	}
	return ctx.Err() != nil || w.IsStopped()
}

// misrouted находит контракт, которому на самом деле адресовано событие
// с чужой стадией.
func misrouted(err error, stage domain.Stage) (domain.Contract, bool) {
	if !errors.Is(err, domain.ErrUnexpectedStage) {
		return domain.Contract{}, false
	}
	return domain.ContractFor(stage)
}
