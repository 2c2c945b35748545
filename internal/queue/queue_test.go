package queue

import (
	"context"
	"errors"
	"testing"
	"time"
)

type payload struct {
	UserID string `json:"user_id"`
	Count  int    `json:"count"`
}

func TestNewMessageRoundTrip(t *testing.T) {
	msg, err := NewMessage("sync.days", payload{UserID: "u1", Count: 3})
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	if len(msg.ID) != 26 {
		t.Fatalf("id %q is not a ulid", msg.ID)
	}

	raw, err := serialize(msg)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	back, err := deserialize(raw)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if back.ID != msg.ID || back.Type != msg.Type {
		t.Fatalf("got %+v want %+v", back, msg)
	}
	var p payload
	if err := back.Decode(&p); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if p.UserID != "u1" || p.Count != 3 {
		t.Fatalf("payload: %+v", p)
	}
}

func TestDeserializeRejectsGarbage(t *testing.T) {
	for _, in := range []string{"sync|{}", `{"id":"x"}`} {
		if _, err := deserialize(in); err == nil {
			t.Fatalf("deserialize(%q) should fail", in)
		}
	}
}

func TestInMemoryDelivers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(4)
	ch, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	for _, typ := range []string{"a", "b"} {
		msg, _ := NewMessage(typ, nil)
		if err := q.Publish(ctx, msg); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	for _, want := range []string{"a", "b"} {
		select {
		case msg := <-ch:
			if msg.Type != want {
				t.Fatalf("got %s want %s", msg.Type, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}

	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("unexpected message after cancel")
		}
	case <-time.After(time.Second):
		t.Fatalf("consumer did not stop")
	}
}

func TestInMemoryPublishDoesNotWaitWhenFull(t *testing.T) {
	q := NewInMemory(1)
	ctx := context.Background()
	if err := q.Publish(ctx, Message{Type: "x"}); err != nil {
		t.Fatalf("first publish: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- q.Publish(ctx, Message{Type: "x"}) }()
	select {
	case err := <-done:
		if !errors.Is(err, ErrQueueFull) {
			t.Fatalf("want ErrQueueFull, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("publish to a full queue blocked")
	}
}

func TestInMemoryPublishHonoursContext(t *testing.T) {
	q := NewInMemory(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := q.Publish(ctx, Message{Type: "x"}); err == nil {
		t.Fatalf("publish with a cancelled context should fail")
	}
}
