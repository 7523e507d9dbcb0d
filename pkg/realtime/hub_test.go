package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ItsMariusBC/TrainStats/pkg/config"
	"github.com/ItsMariusBC/TrainStats/pkg/log"
)

func newTestHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()

	logger, err := log.New(&config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"})
	require.NoError(t, err)

	hub := NewHub(logger)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	return hub, cancel
}

func receive(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}
	}
}

func TestHubPublishReachesSubscribers(t *testing.T) {
	hub, cancel := newTestHub(t)
	defer cancel()

	ch, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	hub.Publish(TopicJourneyUpdated, map[string]int{"id": 7})

	msg := receive(t, ch)
	assert.Equal(t, TopicJourneyUpdated, msg.Topic)
}

func TestHubFansOutToEverySubscriber(t *testing.T) {
	hub, cancel := newTestHub(t)
	defer cancel()

	first, cancelFirst := hub.Subscribe()
	defer cancelFirst()
	second, cancelSecond := hub.Subscribe()
	defer cancelSecond()

	hub.Publish(TopicJourneyCreated, nil)

	assert.Equal(t, TopicJourneyCreated, receive(t, first).Topic)
	assert.Equal(t, TopicJourneyCreated, receive(t, second).Topic)
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	hub, cancel := newTestHub(t)
	defer cancel()

	ch, unsubscribe := hub.Subscribe()
	unsubscribe()

	// The channel is closed on unsubscribe; a receive must not block.
	_, open := <-ch
	assert.False(t, open)

	// Unsubscribing twice is safe.
	unsubscribe()

	hub.Publish(TopicJourneyDeleted, nil)
}

func TestHubShutdownClosesSubscribers(t *testing.T) {
	hub, cancel := newTestHub(t)

	ch, unsubscribe := hub.Subscribe()
	defer unsubscribe()

	cancel()

	select {
	case _, open := <-ch:
		assert.False(t, open)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber channel not closed on shutdown")
	}
}
