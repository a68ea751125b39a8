package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestInMemoryPublishConsume(t *testing.T) {
	t.Parallel()

	q := NewInMemory(2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := q.Publish(ctx, Message{Type: "notify", Body: json.RawMessage(`{"a":1}`)}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	ch, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	select {
	case msg := <-ch:
		if msg.Type != "notify" || string(msg.Body) != `{"a":1}` {
			t.Fatalf("unexpected message %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}

	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected channel to close after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
}

func TestInMemoryFull(t *testing.T) {
	t.Parallel()

	q := NewInMemory(1)
	ctx := context.Background()
	if err := q.Publish(ctx, Message{Type: "notify"}); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	if err := q.Publish(ctx, Message{Type: "notify"}); !errors.Is(err, ErrFull) {
		t.Fatalf("expected ErrFull, got %v", err)
	}
}

func TestEncodeDecode(t *testing.T) {
	t.Parallel()

	raw, err := encode(Message{Type: "notify", Body: json.RawMessage(`{"title":"a|b"}`)})
	if err != nil {
		t.Fatal(err)
	}
	msg, err := decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	if msg.Type != "notify" || string(msg.Body) != `{"title":"a|b"}` {
		t.Fatalf("round trip mismatch: %+v", msg)
	}
	if _, err := decode(`not json`); err == nil {
		t.Fatal("expected decode error")
	}
	if _, err := decode(`{"body":{}}`); err == nil {
		t.Fatal("expected error for missing type")
	}
}
