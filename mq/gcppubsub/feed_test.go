package gcppubsub_test

import (
	"context"
	"os"
	"testing"
	"time"

	"tripsync/mq/gcppubsub" // Import the package to be tested
	"tripsync/mq/mq"
)

// --- Test Pre-requisite ---
// This test suite requires the Google Cloud Pub/Sub emulator to be running.
// Before running the tests, start the emulator using the gcloud CLI:
//
//	gcloud beta emulators pubsub start --project=test-project
//
// The tests will automatically detect the PUBSUB_EMULATOR_HOST environment
// variable set by the emulator. If it's not set, all tests will be skipped.
const testProjectID = "test-project"

// getTestFeed connects to the Pub/Sub emulator and creates a new change feed for testing.
func getTestFeed(t *testing.T) mq.ChangeFeed {
	t.Helper()
	if os.Getenv("PUBSUB_EMULATOR_HOST") == "" {
		t.Skip("Skipping test: PUBSUB_EMULATOR_HOST environment variable not set. Please start the Pub/Sub emulator.")
	}
	feed, err := gcppubsub.NewGCPChangeFeed(context.Background(), testProjectID, nil)
	if err != nil {
		t.Fatalf("Failed to create GCP change feed for emulator: %v", err)
	}
	t.Cleanup(func() { feed.Close() })
	return feed
}

// receiveMsgWithTimeout attempts to receive a message from a channel with a specified timeout.
func receiveMsgWithTimeout[T any](tb testing.TB, ch <-chan T, timeout time.Duration) (T, bool) {
	tb.Helper()
	select {
	case msg, ok := <-ch:
		if !ok {
			var zero T
			return zero, false // Channel closed
		}
		return msg, true
	case <-time.After(timeout):
		var zero T
		return zero, false // Timeout
	}
}

func TestGCPChangeFeed_FilteredByCollection(t *testing.T) {
	feed := getTestFeed(t)

	id, todos, err := feed.Subscribe("todos")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	_, shopping, err := feed.Subscribe("shopping")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	want := mq.ChangeMessage{Collection: "todos", Action: mq.ActionDelete, DocumentID: "x1"}
	if err := feed.Publish(want); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	got, ok := receiveMsgWithTimeout(t, todos, 10*time.Second)
	if !ok {
		t.Fatal("todos subscriber did not receive the message")
	}
	if got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}
	if _, ok := receiveMsgWithTimeout(t, shopping, time.Second); ok {
		t.Error("shopping subscriber received a todos change")
	}

	if err := feed.DeSubscribe(id); err != nil {
		t.Errorf("DeSubscribe failed: %v", err)
	}
	if _, ok := receiveMsgWithTimeout(t, todos, 10*time.Second); ok {
		t.Error("channel should be closed after DeSubscribe")
	}
}

func TestGetGCPProjectID(t *testing.T) {
	t.Setenv("GCP_PROJECT_ID", "")
	if _, err := gcppubsub.GetGCPProjectID(); err == nil {
		t.Error("expected an error without GCP_PROJECT_ID")
	}
	t.Setenv("GCP_PROJECT_ID", "trip-project")
	id, err := gcppubsub.GetGCPProjectID()
	if err != nil || id != "trip-project" {
		t.Errorf("expected trip-project, got %q (%v)", id, err)
	}
}
