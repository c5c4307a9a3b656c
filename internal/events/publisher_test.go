package events

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestBusPublishSubscribe(t *testing.T) {
	bus := NewBus(testLogger())
	defer bus.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	received, err := bus.Subscribe(ctx, TypeSyncCompleted)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	payload := map[string]any{"site_id": "site1", "lesson_id": float64(7)}
	if err := bus.Publish(ctx, TypeSyncCompleted, payload); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case event := <-received:
		if event.Type != TypeSyncCompleted {
			t.Errorf("type = %q, want %q", event.Type, TypeSyncCompleted)
		}
		if event.Source != EventSource {
			t.Errorf("source = %q, want %q", event.Source, EventSource)
		}
		if event.ID == "" {
			t.Error("event id should be set")
		}
		data, ok := event.Data.(map[string]any)
		if !ok {
			t.Fatalf("data type = %T, want map", event.Data)
		}
		if data["site_id"] != "site1" || data["lesson_id"] != float64(7) {
			t.Errorf("data = %v", data)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}
}

func TestBusSubscribeIsolatedByType(t *testing.T) {
	bus := NewBus(testLogger())
	defer bus.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	failures, err := bus.Subscribe(ctx, TypeSyncFailed)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := bus.Publish(ctx, TypeSyncStarted, nil); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := bus.Publish(ctx, TypeSyncFailed, map[string]any{"error": "boom"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case event := <-failures:
		if event.Type != TypeSyncFailed {
			t.Errorf("type = %q, want %q", event.Type, TypeSyncFailed)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}
}

func TestMockEventPublisher(t *testing.T) {
	mock := NewMockEventPublisher(testLogger())
	ctx := context.Background()

	if err := mock.Publish(ctx, TypeAutoSynced, map[string]any{"lesson_id": int64(7)}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := mock.Publish(ctx, TypeSyncCompleted, nil); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	published := mock.GetPublishedEvents()
	if len(published) != 2 {
		t.Fatalf("published %d events, want 2", len(published))
	}
	if published[0].Type != TypeAutoSynced || published[1].Type != TypeSyncCompleted {
		t.Errorf("types = %q, %q", published[0].Type, published[1].Type)
	}

	mock.ClearEvents()
	if remaining := mock.GetPublishedEvents(); len(remaining) != 0 {
		t.Errorf("expected no events after clear, got %d", len(remaining))
	}
}
