package rabbitmq

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	reconnectInitialDelay = 1 * time.Second
	reconnectMaxDelay     = 30 * time.Second
)

// Consumer consumes messages from queues bound to a topic exchange. A handler
// returns true to acknowledge the message and false to requeue it. The
// consumer redials and resubscribes with bounded exponential backoff when the
// connection drops; exchange and queue declarations are no-ops when they
// already exist, so resubscription is safe to repeat.
type Consumer struct {
	url      string
	exchange string
	queue    string
	bindings map[string]func([]byte) bool
}

// NewConsumer creates a consumer for the given queue and routing-key bindings.
func NewConsumer(amqpURL, exchange, queue string, bindings map[string]func([]byte) bool) (*Consumer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}
	if len(bindings) == 0 {
		return nil, fmt.Errorf("no bindings provided")
	}
	return &Consumer{url: cleanURL, exchange: exchange, queue: queue, bindings: bindings}, nil
}

// Start runs the consume loop in a background goroutine until ctx is
// cancelled. The initial connection is attempted synchronously so callers can
// fail fast on misconfiguration.
func (c *Consumer) Start(ctx context.Context) error {
	conn, ch, msgs, err := c.subscribe()
	if err != nil {
		return err
	}

	go func() {
		delay := reconnectInitialDelay
		for {
			c.drain(ctx, msgs)
			ch.Close()
			conn.Close()

			if ctx.Err() != nil {
				return
			}

			for {
				jitter := time.Duration(rand.Int63n(int64(delay) / 2))
				sleep := delay + jitter
				if sleep > reconnectMaxDelay {
					sleep = reconnectMaxDelay
				}
				log.Printf("level=warn component=rabbitmq_consumer queue=%s msg=\"connection lost; reconnecting\" delay=%s", c.queue, sleep)
				select {
				case <-ctx.Done():
					return
				case <-time.After(sleep):
				}

				conn, ch, msgs, err = c.subscribe()
				if err == nil {
					delay = reconnectInitialDelay
					break
				}
				log.Printf("level=error component=rabbitmq_consumer queue=%s msg=\"reconnect failed\" err=%v", c.queue, err)
				delay *= 2
				if delay > reconnectMaxDelay {
					delay = reconnectMaxDelay
				}
			}
		}
	}()

	return nil
}

func (c *Consumer) subscribe() (*amqp.Connection, *amqp.Channel, <-chan amqp.Delivery, error) {
	conn, err := amqp.DialConfig(c.url, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, nil, nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, nil, err
	}

	if err := ch.ExchangeDeclare(c.exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, nil, err
	}

	q, err := ch.QueueDeclare(c.queue, true, false, false, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, nil, err
	}

	for routingKey := range c.bindings {
		if err := ch.QueueBind(q.Name, routingKey, c.exchange, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, nil, nil, err
		}
	}

	msgs, err := ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, nil, err
	}

	return conn, ch, msgs, nil
}

// drain dispatches deliveries until the channel closes or ctx is cancelled.
func (c *Consumer) drain(ctx context.Context, msgs <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-msgs:
			if !ok {
				return
			}
			handler, found := c.bindings[d.RoutingKey]
			if !found || handler == nil {
				log.Printf("level=warn component=rabbitmq_consumer queue=%s msg=\"no handler for routing key; acknowledging to drop\" routing_key=%s", c.queue, d.RoutingKey)
				d.Ack(false)
				continue
			}
			if handler(d.Body) {
				d.Ack(false)
			} else {
				log.Printf("level=warn component=rabbitmq_consumer queue=%s msg=\"handler failed; re-queuing\" routing_key=%s", c.queue, d.RoutingKey)
				d.Nack(false, true)
			}
		}
	}
}
