// Package session maneja la sesión HTTP respaldada por cache.
//
// El cookie lleva un token opaco; en cache vive el JSON de la sesión bajo
// "sid:" + sha256(token). Los datos auxiliares del flujo OIDC (client, theme,
// redirect validado) viven todos bajo UNA key reservada ("extra"), lo que
// permite limpiarlos de un plumazo sin tocar el resto de la sesión.
package session

import (
	"time"
)

// Keys conocidas dentro del bag Extra.
const (
	ExtraClientName   = "client_name"
	ExtraClientURI    = "client_uri"
	ExtraClientTerms  = "client_terms"
	ExtraClientWeb    = "client_website"
	ExtraClientRef    = "client_ref" // id interno del client
	ExtraClientID     = "client_id"  // client_id externo (token)
	ExtraSiteID       = "site_id"
	ExtraTheme        = "theme"
	ExtraRedirectURI  = "redirect_uri"           // redirect vigente del flujo
	ExtraValidatedURI = "redirect_uri_validated" // marker de cache de validación
	ExtraLanguage     = "language"
)

// FlowKeys son las keys que componen el estado de un flujo de autorización.
// Se purgan juntas en la limpieza off-domain.
var FlowKeys = []string{
	ExtraClientName, ExtraClientURI, ExtraClientTerms, ExtraClientWeb,
	ExtraClientRef, ExtraClientID, ExtraSiteID, ExtraTheme,
	ExtraRedirectURI, ExtraValidatedURI,
}

// Session es el estado de una sesión activa.
type Session struct {
	// token crudo del cookie; no se serializa.
	token string
	// invalidated marca la sesión destruida: Save pasa a ser no-op.
	invalidated bool

	UserID    string         `json:"user_id,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// Invalidate marca la sesión como destruida para que no vuelva a persistirse.
func (s *Session) Invalidate() { s.invalidated = true }

// Token retorna el token crudo asociado (vacío si la sesión es nueva sin cookie).
func (s *Session) Token() string { return s.token }

// Authenticated indica si la sesión tiene un usuario logueado.
func (s *Session) Authenticated() bool { return s.UserID != "" }

// GetExtra lee una key del bag. Nunca falla: retorna ("", false) si el bag
// o la key no existen.
func (s *Session) GetExtra(key string) (any, bool) {
	if s.Extra == nil {
		return nil, false
	}
	v, ok := s.Extra[key]
	return v, ok
}

// GetExtraString lee una key esperando string.
func (s *Session) GetExtraString(key string) string {
	v, ok := s.GetExtra(key)
	if !ok {
		return ""
	}
	str, _ := v.(string)
	return str
}

// SetExtra escribe una key. Crea el bag de forma perezosa.
func (s *Session) SetExtra(key string, value any) {
	if s.Extra == nil {
		s.Extra = make(map[string]any)
	}
	s.Extra[key] = value
}

// DeleteExtra borra un conjunto de keys. No-op sobre keys/bag ausentes.
func (s *Session) DeleteExtra(keys ...string) {
	if s.Extra == nil {
		return
	}
	for _, k := range keys {
		delete(s.Extra, k)
	}
}

// ClearExtra vacía el bag completo (fin de flujo / bounce off-domain).
func (s *Session) ClearExtra() {
	s.Extra = nil
}
