package mq

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Subscriber 介面定義了任何可被訂閱和取消訂閱的服務所需的方法。
// 這是一個泛型介面，`M` 代表其訂閱的訊息型別。
type Subscriber[M any] interface {
	Subscribe(topic string) (uuid.UUID, <-chan M, error)
	DeSubscribe(id uuid.UUID) error
}

// SubscribeProcessor subscribes service to topic and forwards every transformed
// message to outputStream until ctx is done or the input channel closes.
// When prime is non-nil its result is delivered before any subscribed message,
// which lets callers emit an initial state without missing concurrent messages.
// outputStream is closed when processing stops.
//
// S 是訊息佇列服務類型，M 是該服務訂閱的訊息類型，O 是輸出結果的型別。
func SubscribeProcessor[S Subscriber[M], M any, O any](
	ctx context.Context,
	topic string,
	service S,
	prime func() (O, bool, error),
	transformFunc func(msg M) (O, bool, error),
	outputStream chan<- O,
) error {
	// 1. 執行訂閱 (synchronously, so no message after this call is lost)
	uid, inputCh, err := service.Subscribe(topic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}

	go func() {
		// 在 goroutine 結束時，自動取消訂閱
		defer func() {
			if err := service.DeSubscribe(uid); err != nil {
				slog.Debug("de-subscribe after processor stop", "id", uid, "error", err)
			}
			close(outputStream)
		}()

		send := func(output O, skip bool, err error) bool {
			if err != nil || skip {
				return true
			}
			select {
			case outputStream <- output:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if prime != nil && !send(prime()) {
			return
		}

		for {
			select {
			case msg, ok := <-inputCh:
				if !ok {
					// parent close channel
					return
				}
				if !send(transformFunc(msg)) {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}
