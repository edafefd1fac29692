// Package consent registra el consent aceptado y la relación usuario↔site.
package consent

import (
	"context"
	"errors"
	"fmt"

	"github.com/dropDatabas3/portero/internal/events"
	"github.com/dropDatabas3/portero/internal/observability/logger"
	"github.com/dropDatabas3/portero/internal/store/core"
)

// Store es la porción de repositorio que usa el recorder.
type Store interface {
	GetClientByClientID(ctx context.Context, clientID string) (*core.Client, *core.Site, error)
	UpsertConsent(ctx context.Context, userID, clientID string, scopes []string) error
	GetOrCreateUserSite(ctx context.Context, userID string, siteID int64) (*core.UserSite, bool, error)
	MarkUserSiteConsent(ctx context.Context, userID string, siteID int64) error
}

// Recorder reacciona al evento ConsentGranted.
type Recorder struct {
	store Store
}

func NewRecorder(s Store) *Recorder {
	return &Recorder{store: s}
}

// Handler retorna el handler para registrar en el bus.
func (r *Recorder) Handler() events.ConsentHandler {
	return r.HandleConsent
}

// HandleConsent persiste el consent y asegura exactamente un UserSite por
// (user, site). Idempotente: el segundo evento idéntico es un no-op.
//
// Un client sin site es un error de provisioning: se propaga sin retry,
// no hay nada transitorio que esperar.
func (r *Recorder) HandleConsent(ctx context.Context, e events.ConsentGranted) error {
	_, site, err := r.store.GetClientByClientID(ctx, e.ClientID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return fmt.Errorf("consent: client %q not provisioned: %w", e.ClientID, err)
		}
		return err
	}
	if site == nil {
		return fmt.Errorf("consent: client %q has no site configured", e.ClientID)
	}

	if err := r.store.UpsertConsent(ctx, e.UserID, e.ClientID, e.Scopes); err != nil {
		return err
	}

	us, created, err := r.store.GetOrCreateUserSite(ctx, e.UserID, site.ID)
	if err != nil {
		return err
	}
	// consented_at se re-sella en cada consent, también sobre relaciones
	// que nacieron por invitación sin consent previo.
	if err := r.store.MarkUserSiteConsent(ctx, e.UserID, site.ID); err != nil {
		return err
	}
	if created {
		logger.From(ctx).Info("primer consent del usuario en el site",
			logger.UserID(e.UserID),
			logger.SiteID(site.ID),
			logger.Int64("user_site_id", us.ID),
		)
	}
	return nil
}
