package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const defaultAMQPExchange = "unibro.auth.changed"

// AMQPBroadcaster fans signals out through a RabbitMQ fanout exchange. Each
// listener binds its own exclusive auto-delete queue.
type AMQPBroadcaster struct {
	conn     *amqp.Connection
	exchange string

	mu      sync.Mutex
	publish *amqp.Channel
}

// NewAMQPBroadcaster dials url and declares the exchange.
func NewAMQPBroadcaster(url, exchange string) (*AMQPBroadcaster, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("notify: amqp url is required")
	}
	exchange = strings.TrimSpace(exchange)
	if exchange == "" {
		exchange = defaultAMQPExchange
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeFanout, false, true, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPBroadcaster{conn: conn, exchange: exchange, publish: ch}, nil
}

func (b *AMQPBroadcaster) Broadcast(ctx context.Context, origin string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.publish.PublishWithContext(ctx, b.exchange, "", false, false, amqp.Publishing{
		ContentType: "text/plain",
		Body:        []byte(origin),
		Timestamp:   time.Now().UTC(),
	})
}

func (b *AMQPBroadcaster) Listen(ctx context.Context, fn func(origin string)) error {
	ch, err := b.conn.Channel()
	if err != nil {
		return fmt.Errorf("open amqp channel: %w", err)
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", b.exchange, false, nil); err != nil {
		_ = ch.Close()
		return fmt.Errorf("bind queue: %w", err)
	}
	deliveries, err := ch.ConsumeWithContext(ctx, q.Name, "", true, true, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("consume: %w", err)
	}
	go func() {
		defer ch.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				fn(string(d.Body))
			}
		}
	}()
	return nil
}

func (b *AMQPBroadcaster) Close() error {
	return b.conn.Close()
}
