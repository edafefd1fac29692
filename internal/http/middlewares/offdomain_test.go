package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dropDatabas3/portero/internal/session"
)

func runOffDomain(t *testing.T, s *session.Session, location string, status int) {
	t.Helper()
	h := WithOffDomainCleanup()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if location != "" {
			w.Header().Set("Location", location)
		}
		w.WriteHeader(status)
	}))
	r := httptest.NewRequest(http.MethodGet, "/login", nil)
	r.Host = "auth.example"
	r = r.WithContext(WithSessionCtx(r.Context(), s))
	h.ServeHTTP(httptest.NewRecorder(), r)
}

func flowSession() *session.Session {
	s := &session.Session{}
	s.SetExtra(session.ExtraTheme, "dark")
	s.SetExtra(session.ExtraClientName, "Acme")
	s.SetExtra(session.ExtraRedirectURI, "https://a.example/cb")
	return s
}

func TestOffDomainRedirectPurgesFlowState(t *testing.T) {
	s := flowSession()
	runOffDomain(t, s, "https://a.example/cb?code=xyz", http.StatusFound)

	if s.Extra != nil {
		t.Fatalf("bounce off-domain debe purgar todo el estado: %v", s.Extra)
	}
}

func TestOnDomainRedirectKeepsState(t *testing.T) {
	s := flowSession()
	runOffDomain(t, s, "https://auth.example/consent", http.StatusFound)
	if s.GetExtraString(session.ExtraClientName) != "Acme" {
		t.Fatalf("redirect on-domain no debe purgar")
	}
}

func TestRelativeRedirectKeepsState(t *testing.T) {
	s := flowSession()
	runOffDomain(t, s, "/consent", http.StatusFound)
	if s.GetExtraString(session.ExtraTheme) != "dark" {
		t.Fatalf("redirect relativo no debe purgar")
	}
}

func TestNonRedirectKeepsState(t *testing.T) {
	s := flowSession()
	runOffDomain(t, s, "", http.StatusOK)
	if s.GetExtraString(session.ExtraTheme) != "dark" {
		t.Fatalf("200 no debe purgar")
	}
}

func TestThemeHeader(t *testing.T) {
	s := &session.Session{}
	s.SetExtra(session.ExtraTheme, "dark")

	h := WithThemeHeader()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	r := httptest.NewRequest(http.MethodGet, "/cualquier/path", nil)
	r = r.WithContext(WithSessionCtx(r.Context(), s))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	if got := w.Header().Get(LayerHeader); got != "dark" {
		t.Fatalf("%s = %q", LayerHeader, got)
	}
}

func TestThemeHeaderAbsentWithoutTheme(t *testing.T) {
	h := WithThemeHeader()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(WithSessionCtx(r.Context(), &session.Session{}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if got := w.Header().Get(LayerHeader); got != "" {
		t.Fatalf("header inesperado: %q", got)
	}
}
