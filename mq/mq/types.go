package mq

import "fmt"

type Action int

const (
	ActionCreate Action = iota
	ActionUpdate
	ActionDelete
	ActionCnt
)

func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// ChangeMessage announces that a document of a collection was written.
// Consumers re-read the collection; the message carries no field data.
type ChangeMessage struct {
	Collection string
	Action     Action
	DocumentID string
}

// GetTopic routes change messages by collection name.
func (m ChangeMessage) GetTopic() string {
	return m.Collection
}

// Mode selects the change feed backend.
type Mode string

const (
	ModeGoChan    Mode = "go_chan"
	ModeRabbitMQ  Mode = "rabbitmq"
	ModeGCPPubSub Mode = "gcp_pub_sub"
)

// Valid reports whether m names a known backend.
func (m Mode) Valid() bool {
	switch m {
	case ModeGoChan, ModeRabbitMQ, ModeGCPPubSub:
		return true
	}
	return false
}
