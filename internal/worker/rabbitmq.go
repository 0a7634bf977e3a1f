package worker

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/flicky/storybook-api/internal/model"
)

const (
	PaidOrderQueue = "orders.paid"
	ExportQueue    = "exports"
	dlxExchange    = "storybook.dlx"
)

func dlqName(queue string) string { return queue + ".dlq" }

// SetupRabbitMQ declares the work queues, each dead-lettered to its own DLQ
// through a shared direct exchange.
func SetupRabbitMQ(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(dlxExchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare DLX: %w", err)
	}
	for _, queue := range []string{PaidOrderQueue, ExportQueue} {
		dlq := dlqName(queue)
		if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare %s: %w", dlq, err)
		}
		if err := ch.QueueBind(dlq, queue, dlxExchange, false, nil); err != nil {
			return fmt.Errorf("bind %s: %w", dlq, err)
		}
		if _, err := ch.QueueDeclare(queue, true, false, false, false, amqp.Table{
			"x-dead-letter-exchange":    dlxExchange,
			"x-dead-letter-routing-key": queue,
		}); err != nil {
			return fmt.Errorf("declare %s: %w", queue, err)
		}
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set QoS: %w", err)
	}
	return nil
}

// Publisher sends persistent JSON messages to the work queues.
type Publisher struct {
	ch *amqp.Channel
}

func NewPublisher(ch *amqp.Channel) *Publisher {
	return &Publisher{ch: ch}
}

func (p *Publisher) PublishOrderPaid(ctx context.Context, msg model.OrderMessage) error {
	return p.publish(ctx, PaidOrderQueue, msg)
}

func (p *Publisher) PublishExport(ctx context.Context, msg model.ExportMessage) error {
	return p.publish(ctx, ExportQueue, msg)
}

func (p *Publisher) publish(ctx context.Context, queue string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := p.ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
	}); err != nil {
		return fmt.Errorf("publish to %s: %w", queue, err)
	}
	return nil
}
