// Package queue owns the RabbitMQ topology: the work queue jobs arrive
// on, the TTL'd retry queue that dead-letters expired messages back onto
// the work queue, and the parking queue for exhausted jobs.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rabbitmq/amqp091-go"
	"github.com/wb-go/wbf/retry"

	"github.com/routeworks/router/config"
	"github.com/routeworks/router/internal/model"
)

const (
	keyRoute = "route"
	keyRetry = "retry"
	keyDead  = "dead"
)

// Connection wraps one AMQP connection/channel pair with the topology
// declared.
type Connection struct {
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	cfg      config.RabbitMQConfig
	strategy retry.Strategy
}

// Connect dials RabbitMQ with retries and declares the full topology.
// retryDelayMS becomes the per-message TTL of the retry queue, which is
// what spaces delivery attempts apart.
func Connect(ctx context.Context, cfg config.RabbitMQConfig, strategy retry.Strategy, retryDelayMS int) (*Connection, error) {
	var conn *amqp091.Connection
	var err error

	err = retry.DoContext(ctx, strategy, func() error {
		conn, err = amqp091.Dial(cfg.URL())
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("error connecting to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("error creating channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		cfg.Exchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return nil, fmt.Errorf("error declaring exchange: %w", err)
	}

	err = retry.DoContext(ctx, strategy, func() error {
		if _, errQ := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); errQ != nil {
			return errQ
		}
		if errQ := ch.QueueBind(cfg.Queue, keyRoute, cfg.Exchange, false, nil); errQ != nil {
			return errQ
		}

		// Messages sit in the retry queue until the TTL expires, then
		// dead-letter back onto the work queue.
		if _, errQ := ch.QueueDeclare(cfg.RetryQueue, true, false, false, false, amqp091.Table{
			"x-dead-letter-exchange":    cfg.Exchange,
			"x-dead-letter-routing-key": keyRoute,
			"x-message-ttl":             int32(retryDelayMS),
		}); errQ != nil {
			return errQ
		}
		if errQ := ch.QueueBind(cfg.RetryQueue, keyRetry, cfg.Exchange, false, nil); errQ != nil {
			return errQ
		}

		if _, errQ := ch.QueueDeclare(cfg.DeadLetterQueue, true, false, false, false, nil); errQ != nil {
			return errQ
		}
		return ch.QueueBind(cfg.DeadLetterQueue, keyDead, cfg.Exchange, false, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("error declaring queues: %w", err)
	}

	return &Connection{conn: conn, channel: ch, cfg: cfg, strategy: strategy}, nil
}

// Consume starts delivering jobs from the work queue. Prefetch bounds the
// number of unacked deliveries in flight.
func (c *Connection) Consume(prefetch int) (<-chan amqp091.Delivery, error) {
	if prefetch > 0 {
		if err := c.channel.Qos(prefetch, 0, false); err != nil {
			return nil, fmt.Errorf("error setting prefetch: %w", err)
		}
	}
	deliveries, err := c.channel.Consume(c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("error consuming from queue '%s': %w", c.cfg.Queue, err)
	}
	return deliveries, nil
}

func (c *Connection) publish(ctx context.Context, routingKey string, body []byte, headers amqp091.Table) error {
	return retry.DoContext(ctx, c.strategy, func() error {
		return c.channel.PublishWithContext(ctx, c.cfg.Exchange, routingKey, false, false, amqp091.Publishing{
			ContentType: "application/json",
			Body:        body,
			Headers:     headers,
		})
	})
}

// Republish schedules a retry attempt through the TTL'd retry queue.
func (c *Connection) Republish(ctx context.Context, job model.RoutingJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal retry job: %w", err)
	}
	return c.publish(ctx, keyRetry, body, nil)
}

// DeadLetter parks a job whose retry budget ran out.
func (c *Connection) DeadLetter(ctx context.Context, job model.RoutingJob, reason string) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal dead-lettered job: %w", err)
	}
	return c.publish(ctx, keyDead, body, amqp091.Table{"x-failure-kind": reason})
}

// Close closes the channel and connection.
func (c *Connection) Close() error {
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			return err
		}
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
