// Package events implementa un bus in-process con eventos tipados.
//
// Reemplaza el dispatch "mágico" por registro explícito: cada evento tiene
// su lista de handlers y Publish los invoca en orden, sincrónico. El
// handler decide si su trabajo pesado va a la task queue.
package events

import (
	"context"
	"time"
)

// LoginSucceeded se emite tras autenticar un usuario.
type LoginSucceeded struct {
	UserID   string
	ClientID string // vacío si fue login directo al servicio
	SiteID   int64  // 0 si no hay contexto de client
	At       time.Time
}

// LogoutSucceeded se emite al cerrar sesión.
type LogoutSucceeded struct {
	UserID   string
	ClientID string
	SiteID   int64
	At       time.Time
}

// ConsentGranted se emite cuando el usuario acepta el consent de un client.
type ConsentGranted struct {
	UserID   string
	ClientID string
	Scopes   []string
	At       time.Time
}

type (
	LoginHandler   func(ctx context.Context, e LoginSucceeded) error
	LogoutHandler  func(ctx context.Context, e LogoutSucceeded) error
	ConsentHandler func(ctx context.Context, e ConsentGranted) error
)

// Bus registra handlers en el arranque y despacha en runtime.
// El registro no es thread-safe: se hace todo en el wiring de main.
type Bus struct {
	login   []LoginHandler
	logout  []LogoutHandler
	consent []ConsentHandler
}

func NewBus() *Bus { return &Bus{} }

func (b *Bus) OnLogin(h LoginHandler)     { b.login = append(b.login, h) }
func (b *Bus) OnLogout(h LogoutHandler)   { b.logout = append(b.logout, h) }
func (b *Bus) OnConsent(h ConsentHandler) { b.consent = append(b.consent, h) }

// PublishLogin invoca los handlers en orden. Corta en el primer error.
func (b *Bus) PublishLogin(ctx context.Context, e LoginSucceeded) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	for _, h := range b.login {
		if err := h(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bus) PublishLogout(ctx context.Context, e LogoutSucceeded) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	for _, h := range b.logout {
		if err := h(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bus) PublishConsent(ctx context.Context, e ConsentGranted) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	for _, h := range b.consent {
		if err := h(ctx, e); err != nil {
			return err
		}
	}
	return nil
}
