package mq

import "github.com/google/uuid"

// TopicProvider 定義了一個可以提供 Topic 的介面
type TopicProvider interface {
	GetTopic() string
}

// ChangeFeed fans out change messages to every subscriber of a collection,
// including the process that published them.
type ChangeFeed interface {
	Publish(msg ChangeMessage) error
	Subscribe(collection string) (uuid.UUID, <-chan ChangeMessage, error)
	DeSubscribe(id uuid.UUID) error
	Close() error
}
