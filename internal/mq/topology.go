package mq

import (
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Mindscope/internal/domain"
)

// Queue — тип для имени очереди.
type Queue string

// Очереди pipeline: одна на каждое ребро. Публикация идёт через default
// exchange с routing key = имя очереди, поэтому exchanges и bindings не нужны.
const (
	QueueVideo             Queue = domain.QueueVideo
	QueueAudio             Queue = domain.QueueAudio
	QueueTranscription     Queue = domain.QueueTranscription
	QueueAnalysisCompleted Queue = domain.QueueAnalysisCompleted
)

// QueuesFor возвращает очереди, которые нужны процессу с данным контрактом.
func QueuesFor(c domain.Contract) []Queue {
	names := c.Queues()
	out := make([]Queue, len(names))
	for i, n := range names {
		out[i] = Queue(n)
	}
	return out
}

// DeclareQueues объявляет durable-очереди. Идемпотентно: повторное
// объявление с теми же параметрами ничего не меняет.
func DeclareQueues(ch *amqp.Channel, queues []Queue) error {
	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q), // name
			true,      // durable
			false,     // delete when unused
			false,     // exclusive
			false,     // no-wait
			nil,       // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
	}

	return nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	var b strings.Builder
	b.WriteString("Mindscope RabbitMQ Topology (default exchange):\n")
	for _, c := range domain.Contracts() {
		consumer := "—"
		for _, next := range domain.Contracts() {
			if next.Consumes == c.Next {
				consumer = next.Name
			}
		}
		fmt.Fprintf(&b, "  %-32s %-20s → %s\n", c.Next, "["+string(c.Emits)+"]", consumer)
	}
	return b.String()
}
