package rabbit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"tripsync/mq/mq"
)

const (
	exchangeName = "tripsync_changes_exchange" // All collection change events go through this exchange
)

// routingKey routes change messages by collection, e.g. "collection.todos".
func routingKey(collection string) string {
	return "collection." + collection
}

type consumer struct {
	channel *amqp091.Channel
	tag     string
}

// rabbitChangeFeed implements mq.ChangeFeed for RabbitMQ.
// Each subscriber gets its own exclusive auto-delete queue bound to the
// collection's routing key, so every server instance sees every change.
type rabbitChangeFeed struct {
	conn      *amqp091.Connection
	pubMu     sync.Mutex
	channel   *amqp091.Channel // publish channel
	mu        sync.Mutex       // Protects the consumers map
	consumers map[uuid.UUID]*consumer
	logger    *slog.Logger
}

// NewRabbitChangeFeed declares the change exchange and returns a feed using conn.
// The feed owns conn and closes it on Close.
func NewRabbitChangeFeed(conn *amqp091.Connection, logger *slog.Logger) (mq.ChangeFeed, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	if err := declareExchange(ch); err != nil {
		ch.Close()
		return nil, err
	}
	return &rabbitChangeFeed{
		conn:      conn,
		channel:   ch,
		consumers: make(map[uuid.UUID]*consumer),
		logger:    logger,
	}, nil
}

func declareExchange(ch *amqp091.Channel) error {
	err := ch.ExchangeDeclare(
		exchangeName, // name
		"topic",      // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", exchangeName, err)
	}
	return nil
}

// Publish sends a ChangeMessage to the change exchange.
func (f *rabbitChangeFeed) Publish(msg mq.ChangeMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	f.pubMu.Lock()
	defer f.pubMu.Unlock()
	err = f.channel.PublishWithContext(ctx,
		exchangeName,               // exchange
		routingKey(msg.GetTopic()), // routing key
		false,                      // mandatory
		false,                      // immediate
		amqp091.Publishing{
			ContentType: "application/json",
			Body:        body,
		})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Subscribe returns a read-only channel of change messages for one collection.
func (f *rabbitChangeFeed) Subscribe(collection string) (uuid.UUID, <-chan mq.ChangeMessage, error) {
	ch, err := f.conn.Channel()
	if err != nil {
		return uuid.Nil, nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	q, err := ch.QueueDeclare(
		"",    // name, server generated
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		return uuid.Nil, nil, fmt.Errorf("failed to declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, routingKey(collection), exchangeName, false, nil); err != nil {
		ch.Close()
		return uuid.Nil, nil, fmt.Errorf("failed to bind queue %s: %w", q.Name, err)
	}

	subscriberID := uuid.New()
	tag := "tripsync-" + subscriberID.String()
	deliveries, err := ch.Consume(
		q.Name, // queue
		tag,    // consumer
		true,   // auto-ack
		true,   // exclusive
		false,  // no-local
		false,  // no-wait
		nil,    // args
	)
	if err != nil {
		ch.Close()
		return uuid.Nil, nil, fmt.Errorf("failed to register a consumer: %w", err)
	}

	f.mu.Lock()
	f.consumers[subscriberID] = &consumer{channel: ch, tag: tag}
	f.mu.Unlock()

	outputChan := make(chan mq.ChangeMessage, 8)
	go func() {
		// deliveries closes when the consumer is cancelled or the channel closes
		defer close(outputChan)
		for d := range deliveries {
			var msg mq.ChangeMessage
			if err := json.Unmarshal(d.Body, &msg); err != nil {
				f.logger.Warn("failed to unmarshal change message", "error", err)
				continue
			}
			select {
			case outputChan <- msg:
			case <-time.After(1 * time.Second): // Prevent blocking indefinitely
				f.logger.Warn("timeout sending change message to consumer, skipping", "id", subscriberID, "collection", collection)
			}
		}
	}()

	return subscriberID, outputChan, nil
}

// DeSubscribe cancels the consumer and closes its channel; its queue is auto-deleted.
func (f *rabbitChangeFeed) DeSubscribe(subscriberID uuid.UUID) error {
	f.mu.Lock()
	c, ok := f.consumers[subscriberID]
	delete(f.consumers, subscriberID)
	f.mu.Unlock()
	if !ok {
		return fmt.Errorf("consumer with ID %s not found", subscriberID)
	}
	return c.stop()
}

func (c *consumer) stop() error {
	if err := c.channel.Cancel(c.tag, false); err != nil {
		c.channel.Close()
		return fmt.Errorf("failed to cancel consumer %s: %w", c.tag, err)
	}
	return c.channel.Close()
}

// Close stops every consumer and closes the RabbitMQ connection.
func (f *rabbitChangeFeed) Close() error {
	f.mu.Lock()
	for id, c := range f.consumers {
		if err := c.stop(); err != nil {
			f.logger.Debug("stop consumer on close", "id", id, "error", err)
		}
		delete(f.consumers, id)
	}
	f.mu.Unlock()

	if f.channel != nil {
		f.channel.Close()
	}
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}
