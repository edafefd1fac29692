// Package oidc valida authorization requests contra los clients registrados.
package oidc

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/dropDatabas3/portero/internal/store/core"
)

// Errores tipados de validación. El caller decide cómo renderizarlos
// (400 vs página de error 500).
var (
	// ErrClientNotFound: el client_id no resuelve a ningún client registrado.
	ErrClientNotFound = errors.New("oidc: client not found")

	// ErrRedirectURIMismatch: la redirect_uri no está en la lista registrada.
	ErrRedirectURIMismatch = errors.New("oidc: redirect_uri mismatch")

	// ErrClientIDMissing: llegó redirect_uri off-domain sin client_id.
	ErrClientIDMissing = errors.New("oidc: client_id parameter is missing for off-domain redirect_uri")

	// ErrClientInactive: el client existe pero está dado de baja.
	ErrClientInactive = errors.New("oidc: client inactive")

	// ErrSiteNotFound: hay client pero no site asociado. Error de
	// provisioning, nunca de request: se propaga como 5xx.
	ErrSiteNotFound = errors.New("oidc: no site configured for client")
)

// ClientReader es la porción del repositorio que necesita el validador.
type ClientReader interface {
	GetClientByClientID(ctx context.Context, clientID string) (*core.Client, *core.Site, error)
}

// Validator resuelve y valida pares (client_id, redirect_uri).
type Validator struct {
	clients ClientReader
}

func NewValidator(clients ClientReader) *Validator {
	return &Validator{clients: clients}
}

// Validate confirma que el client existe y que redirect_uri está registrada.
// Validación pura: sin efectos colaterales.
func (v *Validator) Validate(ctx context.Context, clientID, redirectURI string) (*core.Client, *core.Site, error) {
	cl, site, err := v.clients.GetClientByClientID(ctx, clientID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, nil, ErrClientNotFound
		}
		return nil, nil, err
	}
	if !cl.Active {
		return nil, nil, ErrClientInactive
	}
	if site == nil {
		return nil, nil, ErrSiteNotFound
	}

	for _, u := range cl.RedirectURIs {
		if u == redirectURI {
			return cl, site, nil
		}
	}
	return nil, nil, ErrRedirectURIMismatch
}

// CheckSameDomain aplica la regla para redirect_uri SIN client_id: el host de
// la URI debe ser vacío (ruta relativa) o igual al host actual del request.
// Cualquier otro destino es un open redirect y se rechaza.
func CheckSameDomain(redirectURI, requestHost string) error {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return ErrClientIDMissing
	}
	h := u.Host
	if h == "" {
		return nil
	}
	if strings.EqualFold(hostOnly(h), hostOnly(requestHost)) {
		return nil
	}
	return ErrClientIDMissing
}

// hostOnly descarta el puerto para comparar hosts.
func hostOnly(h string) string {
	if i := strings.LastIndex(h, ":"); i > 0 && !strings.Contains(h[i:], "]") {
		return h[:i]
	}
	return h
}
