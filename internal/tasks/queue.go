// Package tasks implementa la cola de trabajos en background.
//
// Contrato: at-least-once. El originador del request nunca espera el
// resultado; los fallos transitorios se reintentan con una policy acotada
// y después quedan logueados para intervención manual.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Task es un trabajo serializable.
type Task struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	Attempt int             `json:"attempt"`
}

// NewTask arma una task con payload JSON.
func NewTask(taskType string, payload any) (Task, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Task{}, err
	}
	return Task{
		ID:      uuid.NewString(),
		Type:    taskType,
		Payload: b,
	}, nil
}

var (
	// ErrClosed: la cola fue cerrada; no se aceptan más trabajos.
	ErrClosed = errors.New("tasks: queue closed")
)

// Queue es el transporte de tasks. Dequeue bloquea hasta que haya trabajo,
// el contexto muera o la cola se cierre.
type Queue interface {
	Enqueue(ctx context.Context, t Task) error
	Dequeue(ctx context.Context) (Task, error)
	Close() error
}

// RetryPolicy acota los reintentos de un handler fallido.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

// DefaultRetryPolicy: 2 reintentos con 300s entre intentos.
var DefaultRetryPolicy = RetryPolicy{MaxRetries: 2, Backoff: 300 * time.Second}
