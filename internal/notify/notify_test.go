package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"benchline/internal/domain"
)

func TestHubBroadcastFiltersByOrder(t *testing.T) {
	hub := NewHub(nil)
	all := &Client{ID: "all", Events: make(chan Event, 4)}
	one := &Client{ID: "one", OrderID: "ord-1", Events: make(chan Event, 4)}
	hub.Register(all)
	hub.Register(one)

	hub.Notify(context.Background(), Notification{Kind: KindDraftSaved, OrderID: "ord-2", Department: domain.DepartmentCasting, At: time.Now()})
	if len(all.Events) != 1 || len(one.Events) != 0 {
		t.Fatalf("unexpected delivery: all=%d one=%d", len(all.Events), len(one.Events))
	}
	hub.Notify(context.Background(), Notification{Kind: KindSubmitted, OrderID: "ord-1", Department: domain.DepartmentCasting})
	if len(one.Events) != 1 {
		t.Fatalf("order listener missed its event")
	}
	evt := <-one.Events
	if evt.Type != string(KindSubmitted) {
		t.Fatalf("event type = %s", evt.Type)
	}
	var n Notification
	if err := json.Unmarshal([]byte(evt.Data), &n); err != nil || n.OrderID != "ord-1" {
		t.Fatalf("decode event: %v %+v", err, n)
	}

	hub.Unregister("one")
	if hub.Len() != 1 {
		t.Fatalf("expected one client left")
	}
	if _, ok := <-one.Events; ok {
		t.Fatalf("unregister should close the channel")
	}
}

func TestHubDropsWhenBufferFull(t *testing.T) {
	hub := NewHub(nil)
	c := &Client{ID: "slow", Events: make(chan Event, 1)}
	hub.Register(c)
	done := make(chan struct{})
	go func() {
		hub.Broadcast("x", Event{Type: "a"})
		hub.Broadcast("x", Event{Type: "b"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("broadcast blocked on a full client")
	}
	if (<-c.Events).Type != "a" {
		t.Fatalf("first event should be kept")
	}
}

func TestLogAndMulti(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	hub := NewHub(nil)
	c := &Client{ID: "c", Events: make(chan Event, 1)}
	hub.Register(c)
	m := Multi{Log{Logger: zap.New(core)}, hub, nil, Nop{}}
	m.Notify(context.Background(), Notification{Kind: KindSaveFailed, OrderID: "o", Message: "draft not saved"})
	if logs.Len() != 1 || logs.All()[0].Level != zap.WarnLevel {
		t.Fatalf("expected one warn entry, got %+v", logs.All())
	}
	if len(c.Events) != 1 {
		t.Fatalf("hub did not receive notification")
	}
}
