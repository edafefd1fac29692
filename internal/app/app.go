// Package app junta las dependencias compartidas por los handlers.
package app

import (
	"time"

	"github.com/dropDatabas3/portero/internal/cache"
	"github.com/dropDatabas3/portero/internal/clients/accesscontrol"
	"github.com/dropDatabas3/portero/internal/clients/userdatastore"
	"github.com/dropDatabas3/portero/internal/config"
	"github.com/dropDatabas3/portero/internal/events"
	"github.com/dropDatabas3/portero/internal/jwt"
	"github.com/dropDatabas3/portero/internal/oidc"
	"github.com/dropDatabas3/portero/internal/session"
	"github.com/dropDatabas3/portero/internal/store/core"
	"github.com/dropDatabas3/portero/internal/tasks"
	"github.com/dropDatabas3/portero/internal/validation"
)

// Container es el wiring central. Se arma una vez en main y se pasa a los
// constructores de handlers; los campos opcionales quedan nil cuando el
// deployment no los usa (ej. AccessControl sin base_url).
type Container struct {
	Cfg   *config.Config
	Store core.Repository
	Cache cache.Client

	Sessions  *session.Manager
	Validator *oidc.Validator
	Issuer    *jwt.Issuer

	Bus   *events.Bus
	Queue tasks.Queue

	AccessControl *accesscontrol.Client
	UserDataStore *userdatastore.Client

	PasswordPolicy validation.Policy

	// CodeTTL es la vida útil de los authorization codes en cache.
	CodeTTL time.Duration
}
