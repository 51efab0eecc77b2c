package rabbitmq

import (
	"context"
	"errors"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"narration-pipeline/config"
)

// ErrNonRetryable tags handler errors whose delivery must be dropped instead
// of requeued. Anything else is nacked back onto the queue.
var ErrNonRetryable = errors.New("non-retryable error")

// Topology names the exchange/queue/routing-key triple one consumer binds.
type Topology struct {
	ExchangeName string
	QueueName    string
	RoutingKey   string
}

type Consumer[T any] interface {
	Consume(ctx context.Context, dependencies T) error
}

type consumer[T any] struct {
	conn       *amqp.Connection
	cfg        *config.RabbitMQ
	topology   Topology
	handler    func(ctx context.Context, msg amqp.Delivery, dependencies T) error
	numWorkers int
}

func (c consumer[T]) Consume(ctx context.Context, dependencies T) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	err = ch.ExchangeDeclare(c.topology.ExchangeName, c.cfg.Kind, true, false, false, false, nil)
	if err != nil {
		zerolog.Ctx(ctx).Error().Str("queue", c.topology.QueueName).Msg("failed to declare exchange")
		return err
	}

	q, err := ch.QueueDeclare(c.topology.QueueName, false, false, false, false, nil)
	if err != nil {
		zerolog.Ctx(ctx).Error().Str("queue", c.topology.QueueName).Msg("failed to declare queue")
		return err
	}

	err = ch.QueueBind(q.Name, c.topology.RoutingKey, c.topology.ExchangeName, false, nil)
	if err != nil {
		zerolog.Ctx(ctx).Error().Str("queue", c.topology.QueueName).Msg("failed to bind queue")
		return err
	}

	err = ch.Qos(c.numWorkers, 0, false)
	if err != nil {
		zerolog.Ctx(ctx).Error().Str("queue", c.topology.QueueName).Msg("failed to set QoS")
		return err
	}

	deliveries, err := ch.Consume(c.topology.QueueName, "", false, false, false, false, nil)
	if err != nil {
		zerolog.Ctx(ctx).Error().Str("queue", c.topology.QueueName).Msg("failed to consume queue")
		return err
	}

	jobs := make(chan amqp.Delivery, c.numWorkers)
	var wg sync.WaitGroup
	for i := 1; i <= c.numWorkers; i++ {
		wg.Add(1)
		go func(workerId int) {
			defer wg.Done()
			for msg := range jobs {
				err := c.handler(ctx, msg, dependencies)
				if err != nil && !errors.Is(err, ErrNonRetryable) {
					zerolog.Ctx(ctx).Error().Err(err).Str("queue", c.topology.QueueName).Msg("failed to handle message, requeueing")
					if nackErr := msg.Nack(false, true); nackErr != nil {
						zerolog.Ctx(ctx).Error().Err(nackErr).Msg("failed to nack message")
					}
					continue
				}
				if err != nil {
					zerolog.Ctx(ctx).Error().Err(err).Str("queue", c.topology.QueueName).Msg("dropping message after non-retryable failure")
				}
				if err := msg.Ack(false); err != nil {
					zerolog.Ctx(ctx).Error().Msg("failed to acknowledge message")
				}
			}
		}(i)
	}

	for {
		select {
		case delivery, ok := <-deliveries:
			if !ok {
				close(jobs)
				wg.Wait()
				return nil
			}

			jobs <- delivery
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return ctx.Err()
		}
	}
}

func NewConsumer[T any](
	conn *amqp.Connection,
	cfg *config.RabbitMQ,
	topology Topology,
	numWorkers int,
	handler func(ctx context.Context, msg amqp.Delivery, dependencies T) error,
) Consumer[T] {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &consumer[T]{
		conn:       conn,
		cfg:        cfg,
		topology:   topology,
		handler:    handler,
		numWorkers: numWorkers,
	}
}
