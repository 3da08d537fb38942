package mq_test

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripsync/mq/goch"
	"tripsync/mq/mq"
)

func TestSubscribeProcessor(t *testing.T) {
	feed := goch.NewChannelChangeFeed(8)
	defer feed.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan string, 8)
	prime := func() (string, bool, error) { return "initial", false, nil }
	transform := func(msg mq.ChangeMessage) (string, bool, error) {
		// deletes are skipped
		return msg.DocumentID, msg.Action == mq.ActionDelete, nil
	}
	err := mq.SubscribeProcessor[mq.ChangeFeed, mq.ChangeMessage, string](ctx, "todos", feed, prime, transform, out)
	require.NoError(t, err)

	for i, action := range []mq.Action{mq.ActionCreate, mq.ActionDelete, mq.ActionUpdate} {
		require.NoError(t, feed.Publish(mq.ChangeMessage{Collection: "todos", Action: action, DocumentID: strconv.Itoa(i)}))
	}

	var got []string
	for len(got) < 3 {
		select {
		case v := <-out:
			got = append(got, v)
		case <-time.After(time.Second):
			t.Fatalf("timed out, got %v", got)
		}
	}
	assert.Equal(t, []string{"initial", "0", "2"}, got)

	cancel()
	select {
	case _, ok := <-out:
		assert.False(t, ok, "output stream must be closed after cancel")
	case <-time.After(time.Second):
		t.Fatal("output stream not closed")
	}
}

func TestModeValid(t *testing.T) {
	assert.True(t, mq.ModeGoChan.Valid())
	assert.True(t, mq.ModeRabbitMQ.Valid())
	assert.True(t, mq.ModeGCPPubSub.Valid())
	assert.False(t, mq.Mode("kafka").Valid())
}
