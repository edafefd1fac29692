package tasks

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/portero/internal/observability/logger"
)

// Handler procesa una task. Error ⇒ reintento según la policy.
type Handler func(ctx context.Context, t Task) error

// Pool consume la cola con N workers concurrentes.
type Pool struct {
	queue    Queue
	handlers map[string]Handler
	policy   RetryPolicy
	workers  int

	// reintentos con backoff pendientes; Run espera a que vuelvan a la
	// cola antes de retornar.
	pending sync.WaitGroup

	// hook de test: reintenta sin backoff.
	retryNow bool
}

func NewPool(q Queue, workers int, policy RetryPolicy) *Pool {
	if workers <= 0 {
		workers = 4
	}
	if policy.Backoff <= 0 {
		policy = DefaultRetryPolicy
	}
	return &Pool{
		queue:    q,
		handlers: make(map[string]Handler),
		policy:   policy,
		workers:  workers,
	}
}

// Register asocia un tipo de task a su handler. Sólo durante el wiring.
func (p *Pool) Register(taskType string, h Handler) {
	p.handlers[taskType] = h
}

// Run bloquea consumiendo hasta que el contexto muera.
func (p *Pool) Run(ctx context.Context) error {
	log := logger.Named("tasks")
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.workers; i++ {
		g.Go(func() error {
			for {
				t, err := p.queue.Dequeue(ctx)
				if err != nil {
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrClosed) {
						return nil
					}
					log.Error("dequeue falló", logger.Err(err))
					// Backoff corto ante errores de transporte para no loopear.
					select {
					case <-time.After(time.Second):
					case <-ctx.Done():
						return nil
					}
					continue
				}
				p.run(ctx, t)
			}
		})
	}
	err := g.Wait()
	// Drenar los reintentos en backoff: al cancelarse el contexto vuelven
	// a la cola de inmediato en vez de morir con el proceso.
	p.pending.Wait()
	return err
}

// run ejecuta el handler y programa el reintento si falla.
func (p *Pool) run(ctx context.Context, t Task) {
	log := logger.Named("tasks").With(
		logger.String("task_id", t.ID),
		logger.String("task_type", t.Type),
		logger.Int("attempt", t.Attempt),
	)

	h, ok := p.handlers[t.Type]
	if !ok {
		log.Error("task sin handler registrado")
		return
	}

	if err := h(ctx, t); err != nil {
		if t.Attempt >= p.policy.MaxRetries {
			log.Error("task agotó reintentos; requiere intervención manual", logger.Err(err))
			return
		}
		t.Attempt++
		log.Warn("task falló; reintento programado", logger.Err(err),
			logger.Any("backoff", p.policy.Backoff))
		p.scheduleRetry(ctx, t)
		return
	}
}

// scheduleRetry re-encola la task después del backoff. Si el contexto se
// cancela antes, re-encola en el acto: un reintento que sólo vive en la
// memoria del proceso que se está apagando se perdería, y el contrato de
// la cola es at-least-once.
func (p *Pool) scheduleRetry(ctx context.Context, t Task) {
	if p.retryNow {
		_ = p.queue.Enqueue(context.Background(), t)
		return
	}
	p.pending.Add(1)
	go func() {
		defer p.pending.Done()
		timer := time.NewTimer(p.policy.Backoff)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
		}
		ectx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := p.queue.Enqueue(ectx, t); err != nil {
			logger.Named("tasks").Error("re-enqueue de reintento falló",
				logger.String("task_id", t.ID), logger.Err(err))
		}
	}()
}
