package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shaiso/Mindscope/internal/domain"
	"github.com/shaiso/Mindscope/internal/mq"
	"github.com/shaiso/Mindscope/internal/telemetry"
)

// Processor выполняет работу одной стадии над артефактом.
//
// Возвращает поля, которые стадия добавляет в payload следующего события
// (должны покрывать Contract.Adds). Побочные эффекты к моменту возврата
// должны быть зафиксированы.
type Processor interface {
	Process(ctx context.Context, event domain.StageEvent) (map[string]string, error)
}

// ProcessorFunc — адаптер функции к Processor.
type ProcessorFunc func(ctx context.Context, event domain.StageEvent) (map[string]string, error)

// Process вызывает f.
func (f ProcessorFunc) Process(ctx context.Context, event domain.StageEvent) (map[string]string, error) {
	return f(ctx, event)
}

// Publisher публикует событие в очередь. Реализуется *mq.Publisher.
type Publisher interface {
	Publish(ctx context.Context, queue mq.Queue, event domain.StageEvent) error
}

// Worker обрабатывает события одной стадии.
type Worker struct {
	contract  domain.Contract
	processor Processor
	publisher Publisher
	conn      *mq.Connection

	consumer *mq.Consumer

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Worker.
type Config struct {
	// Contract — контракт стадии (ExtractorContract, TranscriberContract, ...).
	Contract domain.Contract

	// Processor — работа стадии.
	Processor Processor

	// MQ
	Publisher Publisher
	Conn      *mq.Connection

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Worker{
		contract:  cfg.Contract,
		processor: cfg.Processor,
		publisher: cfg.Publisher,
		conn:      cfg.Conn,
		logger:    telemetry.WithStage(logger, cfg.Contract.Name),
	}
}

// Contract возвращает контракт стадии.
func (w *Worker) Contract() domain.Contract {
	return w.contract
}

// Start запускает consumer на очереди Contract.Consumes.
// Не блокирует: обработка идёт в отдельной горутине до Stop или отмены ctx.
func (w *Worker) Start(ctx context.Context) error {
	if w.contract.IsEntry() {
		return fmt.Errorf("%w: %s has no input queue", ErrNotConfigured, w.contract.Name)
	}
	if w.processor == nil || w.publisher == nil || w.conn == nil {
		return fmt.Errorf("%w: processor, publisher and connection are required", ErrNotConfigured)
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("starting worker",
		"consumes", w.contract.Consumes,
		"expects", w.contract.Expects,
		"next", w.contract.Next,
	)

	w.consumer = mq.NewConsumer(w.conn, w.logger, mq.ConsumerConfig{
		Queue:   mq.Queue(w.contract.Consumes),
		Handler: w.Handle,
	})

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error("consumer error", "error", err)
		}
	}()

	w.logger.Info("worker started")
	return nil
}

// Stop останавливает Worker и ждёт, пока обработчик текущего сообщения
// вернётся. Прерванное сообщение остаётся неподтверждённым.
func (w *Worker) Stop() {
	w.stoppedMu.Lock()
	w.stopped = true
	w.stoppedMu.Unlock()

	w.logger.Info("stopping worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}

	if w.consumer != nil {
		w.consumer.Stop()
	}

	w.wg.Wait()

	w.logger.Info("worker stopped")
}

// IsStopped проверяет, остановлен ли Worker.
func (w *Worker) IsStopped() bool {
	w.stoppedMu.RLock()
	defer w.stoppedMu.RUnlock()
	return w.stopped
}
