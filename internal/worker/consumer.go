package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// errRetry asks the consumer to requeue the message instead of dead-lettering it.
var errRetry = errors.New("transient failure")

type handleFunc func(ctx context.Context, body []byte) error

// consumer runs one handler over one queue. A nil error acks, errRetry
// requeues, anything else is nacked to the DLQ.
type consumer struct {
	channel *amqp.Channel
	queue   string
	handle  handleFunc
	log     *slog.Logger
	done    chan struct{}
}

func newConsumer(ch *amqp.Channel, queue string, handle handleFunc, log *slog.Logger) *consumer {
	return &consumer{channel: ch, queue: queue, handle: handle, log: log.With("queue", queue), done: make(chan struct{})}
}

func (c *consumer) Start(ctx context.Context) error {
	msgs, err := c.channel.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming %s: %w", c.queue, err)
	}

	go func() {
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				c.process(ctx, msg)
			case <-c.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	c.log.Info("worker started")
	return nil
}

func (c *consumer) Stop() { close(c.done) }

func (c *consumer) process(ctx context.Context, msg amqp.Delivery) {
	err := c.handle(ctx, msg.Body)
	switch {
	case err == nil:
		_ = msg.Ack(false)
	case errors.Is(err, errRetry):
		c.log.Warn("message requeued", "error", err)
		_ = msg.Nack(false, true)
	default:
		c.log.Error("message dead-lettered", "error", err)
		_ = msg.Nack(false, false)
	}
}
