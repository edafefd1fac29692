package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dropDatabas3/portero/internal/cache"
	tokens "github.com/dropDatabas3/portero/internal/security/token"
)

var ErrNoSession = errors.New("session: no active session")

// Config del manager de sesiones.
type Config struct {
	CookieName string
	Domain     string
	SameSite   string // "Lax" | "Strict" | "None"
	Secure     bool
	TTL        time.Duration
}

// Manager crea, lee y destruye sesiones contra el cache.
type Manager struct {
	cache cache.Client
	cfg   Config
}

func NewManager(c cache.Client, cfg Config) *Manager {
	if cfg.CookieName == "" {
		cfg.CookieName = "sid"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 12 * time.Hour
	}
	return &Manager{cache: c, cfg: cfg}
}

func cacheKey(token string) string {
	return "sid:" + tokens.SHA256Base64URL(token)
}

// Get lee la sesión del request. ErrNoSession si no hay cookie o expiró.
func (m *Manager) Get(ctx context.Context, r *http.Request) (*Session, error) {
	ck, err := r.Cookie(m.cfg.CookieName)
	if err != nil || ck.Value == "" {
		return nil, ErrNoSession
	}
	raw, err := m.cache.Get(ctx, cacheKey(ck.Value))
	if err != nil {
		if cache.IsNotFound(err) {
			return nil, ErrNoSession
		}
		return nil, err
	}
	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		// Sesión corrupta: tratar como inexistente.
		return nil, ErrNoSession
	}
	s.token = ck.Value
	return &s, nil
}

// GetOrCreate lee la sesión, o crea una anónima nueva emitiendo el cookie.
func (m *Manager) GetOrCreate(ctx context.Context, w http.ResponseWriter, r *http.Request) (*Session, error) {
	if s, err := m.Get(ctx, r); err == nil {
		return s, nil
	} else if err != ErrNoSession {
		return nil, err
	}
	return m.Create(ctx, w, "")
}

// Create emite una sesión nueva (userID vacío = anónima) y setea el cookie.
func (m *Manager) Create(ctx context.Context, w http.ResponseWriter, userID string) (*Session, error) {
	tok, err := tokens.GenerateOpaqueToken(32)
	if err != nil {
		return nil, err
	}
	s := &Session{
		token:     tok,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
	if err := m.Save(ctx, s); err != nil {
		return nil, err
	}
	http.SetCookie(w, m.cookie(tok, m.cfg.TTL))
	return s, nil
}

// Save persiste el estado actual de la sesión con el TTL configurado.
// No-op sobre una sesión invalidada (destruida durante el request).
func (m *Manager) Save(ctx context.Context, s *Session) error {
	if s.invalidated {
		return nil
	}
	if s.token == "" {
		return ErrNoSession
	}
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return m.cache.Set(ctx, cacheKey(s.token), string(b), m.cfg.TTL)
}

// Rotate reemplaza el token de la sesión (post-login, contra fixation).
// El estado (Extra incluido) se conserva bajo el token nuevo.
func (m *Manager) Rotate(ctx context.Context, w http.ResponseWriter, s *Session) error {
	old := s.token
	tok, err := tokens.GenerateOpaqueToken(32)
	if err != nil {
		return err
	}
	s.token = tok
	if err := m.Save(ctx, s); err != nil {
		s.token = old
		return err
	}
	if old != "" {
		_ = m.cache.Delete(ctx, cacheKey(old))
	}
	http.SetCookie(w, m.cookie(tok, m.cfg.TTL))
	return nil
}

// Destroy elimina la sesión del cache y expira el cookie.
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	ck, err := r.Cookie(m.cfg.CookieName)
	if err == nil && ck.Value != "" {
		if derr := m.cache.Delete(ctx, cacheKey(ck.Value)); derr != nil {
			return derr
		}
	}
	http.SetCookie(w, m.cookie("", -time.Hour))
	return nil
}

func (m *Manager) cookie(value string, ttl time.Duration) *http.Cookie {
	c := &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    value,
		Path:     "/",
		Domain:   m.cfg.Domain,
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: parseSameSite(m.cfg.SameSite),
	}
	if ttl > 0 {
		c.MaxAge = int(ttl.Seconds())
	} else {
		c.MaxAge = -1
	}
	return c
}

func parseSameSite(s string) http.SameSite {
	switch strings.ToLower(s) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}
