package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Mindscope/internal/domain"
	"github.com/shaiso/Mindscope/internal/mq"
)

// --- fakes ---

type fakeAcknowledger struct {
	mu      sync.Mutex
	acks    int
	rejects int
	requeue []bool
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks++
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	return f.Reject(tag, requeue)
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejects++
	f.requeue = append(f.requeue, requeue)
	return nil
}

type published struct {
	queue mq.Queue
	event domain.StageEvent
}

type fakePublisher struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, queue mq.Queue, event domain.StageEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, published{queue: queue, event: event})
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestWorker(c domain.Contract, p Processor, pub Publisher) *Worker {
	return New(Config{Contract: c, Processor: p, Publisher: pub, Logger: testLogger()})
}

func deliver(t *testing.T, w *Worker, event domain.StageEvent) (*fakeAcknowledger, error) {
	t.Helper()
	ack := &fakeAcknowledger{}
	d := mq.NewDelivery(amqp.Delivery{Acknowledger: ack, DeliveryTag: 1}, event)
	err := w.Handle(context.Background(), d)
	if !d.Settled() {
		t.Fatal("delivery must be settled by the worker")
	}
	return ack, err
}

func constProcessor(added map[string]string) ProcessorFunc {
	return func(context.Context, domain.StageEvent) (map[string]string, error) {
		return added, nil
	}
}

// --- Tests ---

func TestHandle_ExtractorPublishesSuccessor(t *testing.T) {
	pub := &fakePublisher{}
	w := newTestWorker(domain.ExtractorContract,
		constProcessor(map[string]string{domain.PayloadAudioFilename: "v1.mp3"}), pub)

	in := domain.NewEvent("v1", "u1", domain.StageUploaded,
		map[string]string{domain.PayloadFilename: "v1.mp4"})

	ack, err := deliver(t, w, in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ack.acks != 1 || ack.rejects != 0 {
		t.Errorf("expected exactly one ack, got acks=%d rejects=%d", ack.acks, ack.rejects)
	}

	if len(pub.events) != 1 {
		t.Fatalf("expected exactly one successor, got %d", len(pub.events))
	}
	got := pub.events[0]
	if got.queue != mq.QueueAudio {
		t.Errorf("expected queue %s, got %s", mq.QueueAudio, got.queue)
	}
	if got.event.ArtifactID != "v1" || got.event.OwnerID != "u1" {
		t.Errorf("identity not preserved: %+v", got.event)
	}
	if got.event.Stage != domain.StageAudioExtracted {
		t.Errorf("expected stage audio_extracted, got %s", got.event.Stage)
	}
	if got.event.Payload[domain.PayloadAudioFilename] != "v1.mp3" {
		t.Errorf("expected audio_filename v1.mp3, got %v", got.event.Payload)
	}
}

func TestHandle_WrongStageIsRejectedWithoutSuccessor(t *testing.T) {
	pub := &fakePublisher{}
	called := false
	proc := ProcessorFunc(func(context.Context, domain.StageEvent) (map[string]string, error) {
		called = true
		return nil, nil
	})
	w := newTestWorker(domain.AnalyzerContract, proc, pub)

	// {stage:"transcribed"} без transcript_filename и artifact_id
	in := domain.StageEvent{ArtifactID: "", Stage: domain.StageTranscribed}

	ack, err := deliver(t, w, in)
	if !errors.Is(err, domain.ErrMalformedMessage) {
		t.Fatalf("expected ErrMalformedMessage, got %v", err)
	}
	if called {
		t.Error("processor must not run for malformed event")
	}
	if ack.acks != 0 || ack.rejects != 1 || ack.requeue[0] {
		t.Errorf("expected single reject without requeue, got %+v", ack)
	}
	if len(pub.events) != 0 {
		t.Errorf("expected no successor, got %d", len(pub.events))
	}
}

func TestHandle_MissingRequiredField(t *testing.T) {
	pub := &fakePublisher{}
	w := newTestWorker(domain.TranscriberContract, constProcessor(nil), pub)

	in := domain.NewEvent("v2", "", domain.StageAudioExtracted, map[string]string{})

	ack, err := deliver(t, w, in)
	if !errors.Is(err, domain.ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}
	if ack.rejects != 1 || len(pub.events) != 0 {
		t.Errorf("expected reject and no successor, rejects=%d published=%d", ack.rejects, len(pub.events))
	}
}

func TestHandle_ProcessorErrorRejects(t *testing.T) {
	pub := &fakePublisher{}
	boom := errors.New("ffmpeg exited 1")
	proc := ProcessorFunc(func(context.Context, domain.StageEvent) (map[string]string, error) {
		return nil, boom
	})
	w := newTestWorker(domain.ExtractorContract, proc, pub)

	in := domain.NewEvent("v3", "", domain.StageUploaded,
		map[string]string{domain.PayloadFilename: "v3.mp4"})

	ack, err := deliver(t, w, in)
	if !errors.Is(err, ErrExternalCall) || !errors.Is(err, boom) {
		t.Fatalf("expected ErrExternalCall wrapping cause, got %v", err)
	}
	if ack.acks != 0 || ack.rejects != 1 || ack.requeue[0] {
		t.Errorf("expected reject without requeue, got %+v", ack)
	}
	if len(pub.events) != 0 {
		t.Error("no successor expected after processor failure")
	}
}

func TestHandle_ProcessorMustProvideAddedFields(t *testing.T) {
	pub := &fakePublisher{}
	w := newTestWorker(domain.ExtractorContract, constProcessor(map[string]string{}), pub)

	in := domain.NewEvent("v4", "", domain.StageUploaded,
		map[string]string{domain.PayloadFilename: "v4.mp4"})

	ack, err := deliver(t, w, in)
	if !errors.Is(err, domain.ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}
	if ack.rejects != 1 || len(pub.events) != 0 {
		t.Errorf("expected reject and no successor")
	}
}

func TestHandle_PublishFailureIsNotAcked(t *testing.T) {
	pub := &fakePublisher{err: mq.ErrConnection}
	w := newTestWorker(domain.ExtractorContract,
		constProcessor(map[string]string{domain.PayloadAudioFilename: "v5.mp3"}), pub)

	in := domain.NewEvent("v5", "", domain.StageUploaded,
		map[string]string{domain.PayloadFilename: "v5.mp4"})

	ack, err := deliver(t, w, in)
	if !errors.Is(err, mq.ErrConnection) {
		t.Fatalf("expected publish error, got %v", err)
	}
	if ack.acks != 0 {
		t.Error("delivery must not be acked when successor was not published")
	}
}

func TestHandle_FullChainOrdering(t *testing.T) {
	pub := &fakePublisher{}
	workers := []*Worker{
		newTestWorker(domain.ExtractorContract,
			constProcessor(map[string]string{domain.PayloadAudioFilename: "a.mp3"}), pub),
		newTestWorker(domain.TranscriberContract,
			constProcessor(map[string]string{domain.PayloadTranscriptFilename: "a.json"}), pub),
		newTestWorker(domain.AnalyzerContract,
			constProcessor(map[string]string{domain.PayloadAnalysisFile: "a-analysis.json"}), pub),
	}

	entry, err := domain.EntryContract.Entry("a", "owner", map[string]string{domain.PayloadFilename: "a.mp4"})
	if err != nil {
		t.Fatalf("entry: %v", err)
	}

	stages := []domain.Stage{entry.Stage}
	queue := mq.Queue(domain.EntryContract.Next)
	event := entry

	for _, w := range workers {
		if mq.Queue(w.Contract().Consumes) != queue {
			t.Fatalf("%s consumes %s, event is on %s", w.Contract().Name, w.Contract().Consumes, queue)
		}
		if _, err := deliver(t, w, event); err != nil {
			t.Fatalf("%s: %v", w.Contract().Name, err)
		}
		last := pub.events[len(pub.events)-1]
		stages = append(stages, last.event.Stage)
		queue, event = last.queue, last.event
	}

	want := domain.Stages()
	if len(stages) != len(want) {
		t.Fatalf("expected %d stage tags, got %v", len(want), stages)
	}
	for i := range want {
		if stages[i] != want[i] {
			t.Errorf("stage %d: expected %s, got %s", i, want[i], stages[i])
		}
	}
	if event.ArtifactID != "a" || event.OwnerID != "owner" {
		t.Errorf("identity lost along the chain: %+v", event)
	}
	if queue != mq.QueueAnalysisCompleted {
		t.Errorf("terminal event should land in %s, got %s", mq.QueueAnalysisCompleted, queue)
	}
}

func TestStart_RequiresConsumingContract(t *testing.T) {
	w := newTestWorker(domain.EntryContract, constProcessor(nil), &fakePublisher{})
	if err := w.Start(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}

	w = newTestWorker(domain.ExtractorContract, nil, &fakePublisher{})
	if err := w.Start(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured without processor, got %v", err)
	}
}

func TestHandle_ShutdownLeavesDeliveryUnsettled(t *testing.T) {
	pub := &fakePublisher{}
	proc := ProcessorFunc(func(ctx context.Context, _ domain.StageEvent) (map[string]string, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	w := newTestWorker(domain.TranscriberContract, proc, pub)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ack := &fakeAcknowledger{}
	in := domain.NewEvent("v6", "", domain.StageAudioExtracted,
		map[string]string{domain.PayloadAudioFilename: "v6.mp3"})
	d := mq.NewDelivery(amqp.Delivery{Acknowledger: ack, DeliveryTag: 1}, in)

	err := w.Handle(ctx, d)
	if !errors.Is(err, ErrWorkerStopped) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected ErrWorkerStopped wrapping context.Canceled, got %v", err)
	}
	if d.Settled() || ack.acks != 0 || ack.rejects != 0 {
		t.Errorf("interrupted delivery must stay unsettled, got acks=%d rejects=%d", ack.acks, ack.rejects)
	}
	if len(pub.events) != 0 {
		t.Error("no successor expected after interruption")
	}
}

func TestHandle_StoppedWorkerStillRejectsMalformed(t *testing.T) {
	w := newTestWorker(domain.ExtractorContract, constProcessor(nil), &fakePublisher{})
	w.Stop()
	if !w.IsStopped() {
		t.Fatal("worker should report stopped after Stop")
	}

	in := domain.NewEvent("v7", "", domain.StageTranscribed,
		map[string]string{domain.PayloadTranscriptFilename: "v7.json"})

	ack, err := deliver(t, w, in)
	if errors.Is(err, ErrWorkerStopped) || !errors.Is(err, domain.ErrMalformedMessage) {
		t.Fatalf("expected malformed error, got %v", err)
	}
	if ack.rejects != 1 {
		t.Errorf("malformed event must be rejected even during shutdown, rejects=%d", ack.rejects)
	}
}

func TestMisrouted_NamesOwningContract(t *testing.T) {
	w := newTestWorker(domain.AnalyzerContract, constProcessor(nil), &fakePublisher{})
	in := domain.NewEvent("v8", "", domain.StageAudioExtracted,
		map[string]string{domain.PayloadAudioFilename: "v8.mp3"})

	_, err := deliver(t, w, in)
	owner, ok := misrouted(err, in.Stage)
	if !ok || owner.Name != domain.TranscriberContract.Name {
		t.Errorf("expected transcriber as owner, got %q ok=%v", owner.Name, ok)
	}

	if _, ok := misrouted(errors.New("ffmpeg exited 1"), in.Stage); ok {
		t.Error("only unexpected-stage errors are misrouted")
	}
}
