package eventbus

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func mustUUID() uuid.UUID { return uuid.New() }

func TestPublishDeliversToAllSubscribers(t *testing.T) {
	b := NewBus(4)
	sub1 := b.Subscribe()
	sub2 := b.Subscribe()
	defer b.Unsubscribe(sub1)
	defer b.Unsubscribe(sub2)

	b.Publish(ProfileCreated(mustUUID()))

	for _, sub := range []*Subscription{sub1, sub2} {
		select {
		case evt := <-sub.Events():
			require.Equal(t, TypeProfileCreated, evt.Type)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestPublishNeverBlocksOnFullSubscriber(t *testing.T) {
	b := NewBus(1)
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish(ProfileCreated(mustUUID()))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber queue")
	}
}

func TestLaggedFiresWhenQueueOverflows(t *testing.T) {
	b := NewBus(1)
	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	for i := 0; i < 5; i++ {
		b.Publish(ProfileCreated(mustUUID()))
	}

	select {
	case n := <-sub.Lagged():
		require.Greater(t, n, 0)
	case <-time.After(time.Second):
		t.Fatal("expected a Lagged signal after overflowing the queue")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBus(4)
	sub := b.Subscribe()
	b.Unsubscribe(sub)
	require.Equal(t, 0, b.SubscriberCount())

	b.Publish(ProfileCreated(mustUUID()))
	_, ok := <-sub.Events()
	require.False(t, ok, "events channel should be closed after unsubscribe")
}
