package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sobshdev/altenia/internal/domain/project"
	"github.com/sobshdev/altenia/internal/domain/telemetry"
)

func TestHub_FiltersByLevel(t *testing.T) {
	hub := NewHub(project.NewID(), nil)
	ch, unsubscribe := hub.Subscribe(Filter{Levels: []telemetry.LogLevel{telemetry.LevelError}})
	defer unsubscribe()

	hub.Publish(&telemetry.LogEntry{Level: telemetry.LevelInfo, Message: "ignored"})
	hub.Publish(&telemetry.LogEntry{Level: telemetry.LevelError, Message: "boom"})

	select {
	case entry := <-ch:
		require.Equal(t, "boom", entry.Message)
	case <-time.After(time.Second):
		t.Fatal("expected a matching entry to be delivered")
	}

	select {
	case entry := <-ch:
		t.Fatalf("unexpected second delivery: %+v", entry)
	default:
	}
}

func TestHub_FiltersBySource(t *testing.T) {
	hub := NewHub(project.NewID(), nil)
	ch, unsubscribe := hub.Subscribe(Filter{Source: "api"})
	defer unsubscribe()

	hub.Publish(&telemetry.LogEntry{Source: "worker", Message: "skip"})
	hub.Publish(&telemetry.LogEntry{Source: "api", Message: "keep"})

	entry := <-ch
	require.Equal(t, "keep", entry.Message)
}

func TestHub_UnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub(project.NewID(), nil)
	ch, unsubscribe := hub.Subscribe(Filter{})
	require.Equal(t, 1, hub.SubscriberCount())

	unsubscribe()
	require.Equal(t, 0, hub.SubscriberCount())

	_, ok := <-ch
	require.False(t, ok, "channel should be closed after unsubscribe")
}

func TestHub_SlowSubscriberDoesNotBlockPublish(t *testing.T) {
	hub := NewHub(project.NewID(), nil)
	_, unsubscribe := hub.Subscribe(Filter{})
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer+10; i++ {
			hub.Publish(&telemetry.LogEntry{Message: "x"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full subscriber buffer")
	}
}
