package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dropDatabas3/portero/internal/cache"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(cache.NewMemory("test", 0), Config{
		CookieName: "sid",
		TTL:        time.Hour,
	})
}

func TestExtraBagLazyAndSafe(t *testing.T) {
	s := &Session{}

	// get/delete sobre bag ausente: no-op, sin panic
	if _, ok := s.GetExtra(ExtraTheme); ok {
		t.Fatalf("bag vacío no debería tener keys")
	}
	s.DeleteExtra(ExtraTheme, ExtraClientName)

	// set crea el bag de forma perezosa
	s.SetExtra(ExtraTheme, "dark")
	if got := s.GetExtraString(ExtraTheme); got != "dark" {
		t.Fatalf("theme = %q", got)
	}

	s.SetExtra(ExtraClientName, "Acme")
	s.DeleteExtra(ExtraTheme)
	if _, ok := s.GetExtra(ExtraTheme); ok {
		t.Fatalf("theme debería haberse borrado")
	}
	if s.GetExtraString(ExtraClientName) != "Acme" {
		t.Fatalf("delete no debe tocar otras keys")
	}

	s.ClearExtra()
	if _, ok := s.GetExtra(ExtraClientName); ok {
		t.Fatalf("ClearExtra debe vaciar el bag completo")
	}
}

func TestCreateGetRoundTrip(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	w := httptest.NewRecorder()
	s, err := m.Create(ctx, w, "user-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	s.SetExtra(ExtraClientName, "Acme")
	s.SetExtra(ExtraSiteID, int64(7))
	if err := m.Save(ctx, s); err != nil {
		t.Fatalf("save: %v", err)
	}

	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != "sid" {
		t.Fatalf("cookie de sesión ausente: %v", cookies)
	}
	if !cookies[0].HttpOnly {
		t.Fatalf("cookie debe ser HttpOnly")
	}

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(cookies[0])

	got, err := m.Get(ctx, r)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.UserID != "user-1" {
		t.Fatalf("user_id = %q", got.UserID)
	}
	if got.GetExtraString(ExtraClientName) != "Acme" {
		t.Fatalf("extra no sobrevivió el round-trip")
	}
}

func TestGetWithoutCookie(t *testing.T) {
	m := newManager(t)
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, err := m.Get(context.Background(), r); err != ErrNoSession {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestRotateKeepsStateInvalidatesOldToken(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	w := httptest.NewRecorder()
	s, err := m.Create(ctx, w, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	oldCookie := w.Result().Cookies()[0]
	s.SetExtra(ExtraTheme, "dark")
	s.UserID = "user-9"

	w2 := httptest.NewRecorder()
	if err := m.Rotate(ctx, w2, s); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	newCookie := w2.Result().Cookies()[0]
	if newCookie.Value == oldCookie.Value {
		t.Fatalf("rotate debe emitir token nuevo")
	}

	// Token viejo muerto
	rOld := httptest.NewRequest(http.MethodGet, "/", nil)
	rOld.AddCookie(oldCookie)
	if _, err := m.Get(ctx, rOld); err != ErrNoSession {
		t.Fatalf("token viejo debería estar invalidado, got %v", err)
	}

	// Token nuevo conserva estado
	rNew := httptest.NewRequest(http.MethodGet, "/", nil)
	rNew.AddCookie(newCookie)
	got, err := m.Get(ctx, rNew)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.UserID != "user-9" || got.GetExtraString(ExtraTheme) != "dark" {
		t.Fatalf("rotate perdió estado: %+v", got)
	}
}

func TestDestroy(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()

	w := httptest.NewRecorder()
	if _, err := m.Create(ctx, w, "user-1"); err != nil {
		t.Fatalf("create: %v", err)
	}
	ck := w.Result().Cookies()[0]

	r := httptest.NewRequest(http.MethodPost, "/logout", nil)
	r.AddCookie(ck)
	w2 := httptest.NewRecorder()
	if err := m.Destroy(ctx, w2, r); err != nil {
		t.Fatalf("destroy: %v", err)
	}

	// La sesión ya no existe
	r2 := httptest.NewRequest(http.MethodGet, "/", nil)
	r2.AddCookie(ck)
	if _, err := m.Get(ctx, r2); err != ErrNoSession {
		t.Fatalf("expected ErrNoSession tras destroy, got %v", err)
	}

	// Y el cookie sale expirado
	out := w2.Result().Cookies()
	if len(out) != 1 || out[0].MaxAge != -1 {
		t.Fatalf("cookie de expiración ausente: %v", out)
	}
}
