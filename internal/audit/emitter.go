// Package audit arma y despacha los eventos de login/logout hacia el
// stream externo de auditoría.
//
// El schema es fijo por tipo de evento y se valida ANTES de encolar: un
// evento malformado es un bug del caller, no una condición de runtime.
// La publicación en sí es fire-and-forget vía task queue.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dropDatabas3/portero/internal/stream"
	"github.com/dropDatabas3/portero/internal/tasks"
)

// Tipos de evento soportados por el stream.
const (
	EventLogin  = "login"
	EventLogout = "logout"
)

// TaskPublish es el tipo de task que consume el worker.
const TaskPublish = "audit.publish"

// Event es el payload con schema fijo {event_type, timestamp, site_id, user_id}.
type Event struct {
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	SiteID    int64     `json:"site_id"`
	UserID    string    `json:"user_id"`
}

// Validate chequea el schema. Cualquier violación es un programming error.
func (e Event) Validate() error {
	switch e.EventType {
	case EventLogin, EventLogout:
	default:
		return fmt.Errorf("audit: unknown event_type %q", e.EventType)
	}
	if e.UserID == "" {
		return fmt.Errorf("audit: %s event without user_id", e.EventType)
	}
	if e.SiteID <= 0 {
		return fmt.Errorf("audit: %s event without site_id", e.EventType)
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("audit: %s event without timestamp", e.EventType)
	}
	return nil
}

// Emitter resuelve el site actuante y encola el evento.
type Emitter struct {
	queue tasks.Queue
	// selfSiteID es el site del propio servicio: fallback cuando el
	// login/logout ocurre sin contexto de client OIDC.
	selfSiteID int64
}

func NewEmitter(q tasks.Queue, selfSiteID int64) *Emitter {
	return &Emitter{queue: q, selfSiteID: selfSiteID}
}

// Emit valida y encola. siteID=0 ⇒ se usa el self site.
func (e *Emitter) Emit(ctx context.Context, eventType, userID string, siteID int64, at time.Time) error {
	if siteID == 0 {
		siteID = e.selfSiteID
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	ev := Event{
		EventType: eventType,
		Timestamp: at,
		SiteID:    siteID,
		UserID:    userID,
	}
	if err := ev.Validate(); err != nil {
		return err
	}
	t, err := tasks.NewTask(TaskPublish, ev)
	if err != nil {
		return err
	}
	return e.queue.Enqueue(ctx, t)
}

// PublishHandler retorna el handler de worker que empuja al stream.
func PublishHandler(pub stream.Publisher) tasks.Handler {
	return func(ctx context.Context, t tasks.Task) error {
		var ev Event
		if err := json.Unmarshal(t.Payload, &ev); err != nil {
			// Payload irrecuperable: no reintentar.
			return nil
		}
		return pub.PutEvent(ctx, map[string]any{
			"event_type": ev.EventType,
			"timestamp":  ev.Timestamp.UTC().Format(time.RFC3339),
			"site_id":    ev.SiteID,
			"user_id":    ev.UserID,
		})
	}
}
