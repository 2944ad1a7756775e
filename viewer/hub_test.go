package viewer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHubBroadcastDeliversToAllSubscribers(t *testing.T) {
	hub := NewHub(nil)
	a := hub.Subscribe()
	b := hub.Subscribe()
	require.Equal(t, 2, hub.Subscribers())

	hub.Broadcast(Frame{Type: FrameEvent})

	select {
	case f := <-a:
		require.Equal(t, FrameEvent, f.Type)
	default:
		t.Fatal("subscriber a did not receive frame")
	}
	select {
	case f := <-b:
		require.Equal(t, FrameEvent, f.Type)
	default:
		t.Fatal("subscriber b did not receive frame")
	}
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub(nil)
	ch := hub.Subscribe()
	hub.Unsubscribe(ch)
	require.Equal(t, 0, hub.Subscribers())

	_, ok := <-ch
	require.False(t, ok)
}

func TestHubBroadcastDropsOldestWhenSaturated(t *testing.T) {
	hub := NewHub(nil)
	ch := hub.Subscribe()

	for i := 0; i < subscriberQueueDepth+10; i++ {
		hub.Broadcast(Frame{Type: FrameEvent})
	}

	require.LessOrEqual(t, len(ch), subscriberQueueDepth)
}
