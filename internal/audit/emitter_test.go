package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/dropDatabas3/portero/internal/tasks"
)

func TestEmitEnqueuesValidatedEvent(t *testing.T) {
	q := tasks.NewMemoryQueue(4)
	defer q.Close()
	e := NewEmitter(q, 1)
	ctx := context.Background()

	if err := e.Emit(ctx, EventLogin, "user-1", 7, time.Time{}); err != nil {
		t.Fatalf("emit: %v", err)
	}

	task, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if task.Type != TaskPublish {
		t.Fatalf("type = %q", task.Type)
	}
	var ev Event
	if err := json.Unmarshal(task.Payload, &ev); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if ev.EventType != EventLogin || ev.UserID != "user-1" || ev.SiteID != 7 {
		t.Fatalf("evento inesperado: %+v", ev)
	}
	if ev.Timestamp.IsZero() {
		t.Fatalf("timestamp debería completarse solo")
	}
}

func TestEmitSelfSiteFallback(t *testing.T) {
	q := tasks.NewMemoryQueue(4)
	defer q.Close()
	e := NewEmitter(q, 42)

	if err := e.Emit(context.Background(), EventLogout, "user-1", 0, time.Now()); err != nil {
		t.Fatalf("emit: %v", err)
	}
	task, _ := q.Dequeue(context.Background())
	var ev Event
	_ = json.Unmarshal(task.Payload, &ev)
	if ev.SiteID != 42 {
		t.Fatalf("sin contexto de client debe usarse el self site, got %d", ev.SiteID)
	}
}

func TestEmitRejectsMalformed(t *testing.T) {
	q := tasks.NewMemoryQueue(4)
	defer q.Close()
	e := NewEmitter(q, 1)
	ctx := context.Background()

	if err := e.Emit(ctx, "password_change", "user-1", 1, time.Now()); err == nil {
		t.Fatalf("event_type desconocido debe fallar duro")
	}
	if err := e.Emit(ctx, EventLogin, "", 1, time.Now()); err == nil {
		t.Fatalf("user_id vacío debe fallar duro")
	}
}

type capturePublisher struct {
	fields map[string]any
}

func (c *capturePublisher) PutEvent(ctx context.Context, fields map[string]any) error {
	c.fields = fields
	return nil
}

func TestPublishHandler(t *testing.T) {
	pub := &capturePublisher{}
	h := PublishHandler(pub)

	ev := Event{EventType: EventLogin, Timestamp: time.Now().UTC(), SiteID: 7, UserID: "u1"}
	task, _ := tasks.NewTask(TaskPublish, ev)

	if err := h(context.Background(), task); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if pub.fields["event_type"] != EventLogin || pub.fields["user_id"] != "u1" {
		t.Fatalf("fields = %v", pub.fields)
	}
	if pub.fields["site_id"] != int64(7) {
		t.Fatalf("site_id = %v", pub.fields["site_id"])
	}
}
