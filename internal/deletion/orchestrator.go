// Package deletion implementa el borrado de cuenta multi-store.
//
// No hay transacción distribuida: los datos viven en tres stores
// independientes (local, User Data Store, Access Control). El workflow es
// compensable hacia adelante: el paso 2 desactiva la cuenta como checkpoint
// y todo paso posterior puede fallar dejando al usuario inutilizable pero
// nunca usable a medias. Re-ejecutar la task es seguro: los pasos son
// idempotentes o de tipo delete-if-exists.
package deletion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dropDatabas3/portero/internal/clients/userdatastore"
	"github.com/dropDatabas3/portero/internal/observability/logger"
	"github.com/dropDatabas3/portero/internal/store/core"
	"github.com/dropDatabas3/portero/internal/tasks"
)

// TaskRun es el tipo de task del worker.
const TaskRun = "deletion.run"

// Request es el payload de la task.
type Request struct {
	UserID    string `json:"user_id"`
	DeleterID string `json:"deleter_id"`
	Reason    string `json:"reason"`
}

// Store es la porción local del repositorio que usa el orquestador.
type Store interface {
	GetUserByID(ctx context.Context, id string) (*core.User, error)
	SaveUser(ctx context.Context, u *core.User) error
	DeleteUser(ctx context.Context, id string) error
	ListUserSites(ctx context.Context, userID string) ([]core.UserSite, error)
	DeleteUserSites(ctx context.Context, userID string) (int64, error)
	DeleteConsents(ctx context.Context, userID string) (int64, error)
	CreateDeletionRecord(ctx context.Context, userID string) (*core.DeletionRecord, error)
	AdvanceDeletionRecord(ctx context.Context, id int64, step int) error
	CompleteDeletionRecord(ctx context.Context, id int64) error
}

// UserDataStore son las llamadas del workflow contra el User Data Store.
type UserDataStore interface {
	DeletedUserCreate(ctx context.Context, d userdatastore.DeletedUser) error
	DeletedUserSiteCreate(ctx context.Context, d userdatastore.DeletedUserSite) error
	DeleteUserData(ctx context.Context, userID string) (int64, error)
	DeletedUserUpdate(ctx context.Context, id string, deletedAt time.Time) error
}

// AccessControl es la llamada del workflow contra Access Control.
type AccessControl interface {
	DeleteUserData(ctx context.Context, userID string) (int64, error)
}

type Orchestrator struct {
	store Store
	uds   UserDataStore
	ac    AccessControl
}

func NewOrchestrator(store Store, uds UserDataStore, ac AccessControl) *Orchestrator {
	return &Orchestrator{store: store, uds: uds, ac: ac}
}

// Run ejecuta el workflow completo para el usuario dado.
//
// Pasos, en orden:
//  1. cargar usuario local; ausente ⇒ ya borrado, terminar sin error
//  2. blocked=true y persistir (checkpoint de soft-delete)
//  3. tombstone DeletedUser en el User Data Store
//  4. un tombstone DeletedUserSite por cada UserSite (sin batching)
//  5. borrar filas locales: consents primero, después user_sites
//  6. bulk delete en User Data Store y Access Control (counts sólo se loguean)
//  7. patch de deleted_at en el tombstone y borrado del CoreUser local
//
// Cualquier error en 3–7 aborta lo que falte. No se revierte el paso 2: la
// cuenta queda desactivada hasta que el retry o un operador completen el
// borrado.
func (o *Orchestrator) Run(ctx context.Context, req Request) error {
	log := logger.From(ctx).Named("deletion").With(logger.UserID(req.UserID))

	// 1. lookup
	u, err := o.store.GetUserByID(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			log.Info("usuario inexistente; borrado ya satisfecho")
			return nil
		}
		return fmt.Errorf("deletion: load user: %w", err)
	}

	rec, err := o.store.CreateDeletionRecord(ctx, req.UserID)
	if err != nil {
		return fmt.Errorf("deletion: record: %w", err)
	}

	// 2. soft delete checkpoint
	if !u.Blocked {
		u.Blocked = true
		if err := o.store.SaveUser(ctx, u); err != nil {
			return fmt.Errorf("deletion: deactivate: %w", err)
		}
	}
	_ = o.store.AdvanceDeletionRecord(ctx, rec.ID, 2)

	// 3. tombstone del usuario
	if err := o.uds.DeletedUserCreate(ctx, userdatastore.DeletedUser{
		ID:        req.UserID,
		DeleterID: req.DeleterID,
		Reason:    req.Reason,
	}); err != nil {
		return fmt.Errorf("deletion: deleted-user tombstone: %w", err)
	}
	_ = o.store.AdvanceDeletionRecord(ctx, rec.ID, 3)

	// 4. tombstone por site, uno por llamada
	sites, err := o.store.ListUserSites(ctx, req.UserID)
	if err != nil {
		return fmt.Errorf("deletion: list user sites: %w", err)
	}
	for _, us := range sites {
		if err := o.uds.DeletedUserSiteCreate(ctx, userdatastore.DeletedUserSite{
			DeletedUserID: req.UserID,
			SiteID:        us.SiteID,
		}); err != nil {
			return fmt.Errorf("deletion: deleted-site tombstone (site %d): %w", us.SiteID, err)
		}
	}
	_ = o.store.AdvanceDeletionRecord(ctx, rec.ID, 4)

	// 5. filas locales. Los consents son grants de capacidad: caen antes
	// que las asociaciones user_site que los justificaban.
	nc, err := o.store.DeleteConsents(ctx, req.UserID)
	if err != nil {
		return fmt.Errorf("deletion: delete consents: %w", err)
	}
	ns, err := o.store.DeleteUserSites(ctx, req.UserID)
	if err != nil {
		return fmt.Errorf("deletion: delete user sites: %w", err)
	}
	log.Info("filas locales borradas",
		logger.Int64("consents", nc), logger.Int64("user_sites", ns))
	_ = o.store.AdvanceDeletionRecord(ctx, rec.ID, 5)

	// 6. bulk deletes downstream; los counts se loguean, no se verifican
	udsAmount, err := o.uds.DeleteUserData(ctx, req.UserID)
	if err != nil {
		return fmt.Errorf("deletion: user-data-store bulk delete: %w", err)
	}
	acAmount, err := o.ac.DeleteUserData(ctx, req.UserID)
	if err != nil {
		return fmt.Errorf("deletion: access-control bulk delete: %w", err)
	}
	log.Info("datos downstream borrados",
		logger.Int64("user_data_store_rows", udsAmount),
		logger.Int64("access_control_rows", acAmount))
	_ = o.store.AdvanceDeletionRecord(ctx, rec.ID, 6)

	// 7. cierre: patch del tombstone y baja del CoreUser local.
	// Va último a propósito: un retry que llegue hasta acá rehace deletes
	// ya vacíos sin efectos visibles.
	if err := o.uds.DeletedUserUpdate(ctx, req.UserID, time.Now().UTC()); err != nil {
		return fmt.Errorf("deletion: tombstone completion: %w", err)
	}
	if err := o.store.DeleteUser(ctx, req.UserID); err != nil && !errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("deletion: delete local user: %w", err)
	}
	if err := o.store.CompleteDeletionRecord(ctx, rec.ID); err != nil {
		return fmt.Errorf("deletion: complete record: %w", err)
	}

	log.Info("borrado de cuenta completo")
	return nil
}

// Handler retorna el handler de task para el worker pool.
func (o *Orchestrator) Handler() tasks.Handler {
	return func(ctx context.Context, t tasks.Task) error {
		var req Request
		if err := json.Unmarshal(t.Payload, &req); err != nil {
			// Payload irrecuperable: no reintentar.
			logger.Named("deletion").Error("payload inválido", logger.Err(err))
			return nil
		}
		if req.UserID == "" {
			return nil
		}
		return o.Run(ctx, req)
	}
}

// Enqueue despacha una task de borrado. El caller no espera el resultado.
func Enqueue(ctx context.Context, q tasks.Queue, req Request) error {
	t, err := tasks.NewTask(TaskRun, req)
	if err != nil {
		return err
	}
	return q.Enqueue(ctx, t)
}
