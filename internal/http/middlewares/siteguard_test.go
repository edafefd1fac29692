package middlewares

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dropDatabas3/portero/internal/clients/accesscontrol"
	"github.com/dropDatabas3/portero/internal/session"
)

type fakeResolver struct {
	sites map[string]*accesscontrol.Site
}

func (f *fakeResolver) SiteForClient(ctx context.Context, clientRef string) (*accesscontrol.Site, error) {
	s, ok := f.sites[clientRef]
	if !ok {
		return nil, errors.New("access-control: expected exactly one site, got 0")
	}
	return s, nil
}

func runSiteGuard(t *testing.T, target string, resolver *fakeResolver, s *session.Session) *httptest.ResponseRecorder {
	t.Helper()
	clients := &countingClients{}
	h := WithSiteGuard(resolver, clients, "/authorize")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	r := httptest.NewRequest(http.MethodGet, target, nil)
	if s != nil {
		r = r.WithContext(WithSessionCtx(r.Context(), s))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestSiteGuardActiveSitePasses(t *testing.T) {
	resolver := &fakeResolver{sites: map[string]*accesscontrol.Site{
		"ref-1": {ID: 7, Active: true},
	}}
	w := runSiteGuard(t, "/authorize?client_id=client-a", resolver, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestSiteGuardInactiveSite403(t *testing.T) {
	resolver := &fakeResolver{sites: map[string]*accesscontrol.Site{
		"ref-1": {ID: 7, Active: false},
	}}
	w := runSiteGuard(t, "/authorize?client_id=client-a", resolver, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
}

func TestSiteGuardMissingSiteFailsHard(t *testing.T) {
	resolver := &fakeResolver{sites: map[string]*accesscontrol.Site{}}
	w := runSiteGuard(t, "/authorize?client_id=client-a", resolver, nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500 (error de provisioning)", w.Code)
	}
}

func TestSiteGuardUsesSessionClientRef(t *testing.T) {
	resolver := &fakeResolver{sites: map[string]*accesscontrol.Site{
		"ref-cached": {ID: 9, Active: true},
	}}
	s := &session.Session{}
	s.SetExtra(session.ExtraClientRef, "ref-cached")

	w := runSiteGuard(t, "/authorize?client_id=client-a", resolver, s)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; debería usar el ref cacheado en sesión", w.Code)
	}
}

func TestSiteGuardSkipsOtherPaths(t *testing.T) {
	resolver := &fakeResolver{sites: map[string]*accesscontrol.Site{}}
	w := runSiteGuard(t, "/login?client_id=client-a", resolver, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; sólo /authorize se guarda", w.Code)
	}
}
