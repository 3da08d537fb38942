package goch

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"tripsync/mq/mq"
)

const defaultDeliverTimeout = time.Second

type subscriber[T any] struct {
	topic string
	ch    chan T
}

// fanOutQueueCore delivers every published item to all subscribers of the item's topic.
// A subscriber that does not accept an item within deliverTimeout is removed and its channel closed.
type fanOutQueueCore[T mq.TopicProvider] struct {
	publishChan    chan T
	subscribers    map[uuid.UUID]*subscriber[T]
	mu             sync.RWMutex
	quit           chan struct{}
	done           chan struct{}
	stopOnce       sync.Once
	bufferSize     int
	deliverTimeout time.Duration
}

func newFanOutQueueCore[T mq.TopicProvider](bufferSize int) *fanOutQueueCore[T] {
	if bufferSize < 0 {
		bufferSize = 0
	}
	core := &fanOutQueueCore[T]{
		publishChan:    make(chan T, bufferSize),
		subscribers:    make(map[uuid.UUID]*subscriber[T]),
		quit:           make(chan struct{}),
		done:           make(chan struct{}),
		bufferSize:     bufferSize,
		deliverTimeout: defaultDeliverTimeout,
	}
	go core.fanOutRoutine()
	return core
}

func (c *fanOutQueueCore[T]) fanOutRoutine() {
	defer close(c.done)
	for {
		select {
		case item := <-c.publishChan:
			c.deliver(item)
		case <-c.quit:
			return
		}
	}
}

func (c *fanOutQueueCore[T]) deliver(item T) {
	topic := item.GetTopic()

	// the read lock is held while sending so no channel is closed mid-send
	var blocked []uuid.UUID
	c.mu.RLock()
	for id, sub := range c.subscribers {
		if sub.topic != topic {
			continue
		}
		select {
		case sub.ch <- item:
		case <-time.After(c.deliverTimeout):
			blocked = append(blocked, id)
		case <-c.quit:
			c.mu.RUnlock()
			return
		}
	}
	c.mu.RUnlock()

	for _, id := range blocked {
		slog.Warn("removing blocked change subscriber", "id", id, "topic", topic)
		c.remove(id)
	}
}

func (c *fanOutQueueCore[T]) remove(id uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub, ok := c.subscribers[id]
	if !ok {
		return false
	}
	delete(c.subscribers, id)
	close(sub.ch)
	return true
}

// Publish enqueues item without blocking.
func (c *fanOutQueueCore[T]) Publish(item T) error {
	select {
	case <-c.quit:
		return ErrQueueStopped
	default:
	}
	select {
	case c.publishChan <- item:
		return nil
	default:
		// unbuffered queues still accept an item when the fan-out routine is ready
		select {
		case c.publishChan <- item:
			return nil
		case <-time.After(10 * time.Millisecond):
			return ErrQueueFull
		}
	}
}

// Subscribe registers a new subscriber for topic.
func (c *fanOutQueueCore[T]) Subscribe(topic string) (uuid.UUID, <-chan T, error) {
	select {
	case <-c.quit:
		return uuid.Nil, nil, ErrQueueStopped
	default:
	}
	id := uuid.New()
	ch := make(chan T, c.bufferSize)

	c.mu.Lock()
	c.subscribers[id] = &subscriber[T]{topic: topic, ch: ch}
	c.mu.Unlock()
	return id, ch, nil
}

// DeSubscribe removes the subscriber and closes its channel.
func (c *fanOutQueueCore[T]) DeSubscribe(id uuid.UUID) error {
	if !c.remove(id) {
		return ErrSubscriberNotFound
	}
	return nil
}

// Stop ends the fan-out routine and closes every subscriber channel.
func (c *fanOutQueueCore[T]) Stop() {
	c.stopOnce.Do(func() {
		close(c.quit)
		<-c.done

		c.mu.Lock()
		defer c.mu.Unlock()
		for id, sub := range c.subscribers {
			close(sub.ch)
			delete(c.subscribers, id)
		}
	})
}

// ChannelChangeFeed implements mq.ChangeFeed with in-process Go channels.
type ChannelChangeFeed struct {
	core *fanOutQueueCore[mq.ChangeMessage]
}

// NewChannelChangeFeed creates a new in-process change feed.
// bufferSize determines the capacity of the publish queue and of every subscriber channel.
func NewChannelChangeFeed(bufferSize int) *ChannelChangeFeed {
	return &ChannelChangeFeed{core: newFanOutQueueCore[mq.ChangeMessage](bufferSize)}
}

// Publish sends a change message to every subscriber of its collection.
func (f *ChannelChangeFeed) Publish(msg mq.ChangeMessage) error {
	return f.core.Publish(msg)
}

// Subscribe returns a read-only channel of change messages for one collection.
func (f *ChannelChangeFeed) Subscribe(collection string) (uuid.UUID, <-chan mq.ChangeMessage, error) {
	return f.core.Subscribe(collection)
}

func (f *ChannelChangeFeed) DeSubscribe(id uuid.UUID) error {
	return f.core.DeSubscribe(id)
}

func (f *ChannelChangeFeed) Close() error {
	f.core.Stop()
	return nil
}

// --- Error Definitions ---
type QueueError string

func (e QueueError) Error() string {
	return string(e)
}

const (
	ErrQueueFull          QueueError = "message queue is full"
	ErrQueueStopped       QueueError = "message queue is stopped"
	ErrSubscriberNotFound QueueError = "subscriber not found"
)
