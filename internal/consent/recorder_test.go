package consent

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/dropDatabas3/portero/internal/events"
	"github.com/dropDatabas3/portero/internal/store/core"
)

type fakeStore struct {
	clients   map[string]*core.Client
	sites     map[string]*core.Site
	consents  map[string][]string  // "user|client" → scopes
	userSites map[string]bool      // "user|site"
	consented map[string]time.Time // "user|site" → último consented_at
	creates   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		clients:   map[string]*core.Client{"client-a": {ID: "1", ClientID: "client-a", SiteID: 7, Active: true}},
		sites:     map[string]*core.Site{"client-a": {ID: 7, Domain: "a.example"}},
		consents:  map[string][]string{},
		userSites: map[string]bool{},
		consented: map[string]time.Time{},
	}
}

func (f *fakeStore) GetClientByClientID(ctx context.Context, clientID string) (*core.Client, *core.Site, error) {
	cl, ok := f.clients[clientID]
	if !ok {
		return nil, nil, core.ErrNotFound
	}
	return cl, f.sites[clientID], nil
}

func (f *fakeStore) UpsertConsent(ctx context.Context, userID, clientID string, scopes []string) error {
	f.consents[userID+"|"+clientID] = scopes
	return nil
}

func (f *fakeStore) GetOrCreateUserSite(ctx context.Context, userID string, siteID int64) (*core.UserSite, bool, error) {
	key := fmt.Sprintf("%s|%d", userID, siteID)
	if f.userSites[key] {
		return &core.UserSite{ID: 1, UserID: userID, SiteID: siteID}, false, nil
	}
	f.userSites[key] = true
	f.creates++
	return &core.UserSite{ID: 1, UserID: userID, SiteID: siteID, CreatedAt: time.Now()}, true, nil
}

func (f *fakeStore) MarkUserSiteConsent(ctx context.Context, userID string, siteID int64) error {
	key := fmt.Sprintf("%s|%d", userID, siteID)
	if !f.userSites[key] {
		return core.ErrNotFound
	}
	f.consented[key] = time.Now()
	return nil
}

func TestHandleConsentIdempotent(t *testing.T) {
	store := newFakeStore()
	r := NewRecorder(store)
	ctx := context.Background()

	e := events.ConsentGranted{UserID: "user-1", ClientID: "client-a", Scopes: []string{"openid", "email"}}

	if err := r.HandleConsent(ctx, e); err != nil {
		t.Fatalf("primer consent: %v", err)
	}
	if err := r.HandleConsent(ctx, e); err != nil {
		t.Fatalf("segundo consent debe ser no-op, got %v", err)
	}

	if store.creates != 1 {
		t.Fatalf("UserSite creado %d veces, want 1", store.creates)
	}
	if got := store.consents["user-1|client-a"]; len(got) != 2 {
		t.Fatalf("scopes = %v", got)
	}
	if _, ok := store.consented["user-1|7"]; !ok {
		t.Fatalf("consented_at no quedó sellado en la relación")
	}
}

func TestHandleConsentUnknownClient(t *testing.T) {
	r := NewRecorder(newFakeStore())
	e := events.ConsentGranted{UserID: "user-1", ClientID: "ghost"}
	if err := r.HandleConsent(context.Background(), e); err == nil {
		t.Fatalf("client desconocido debe fallar como error de provisioning")
	}
}

func TestHandleConsentClientWithoutSite(t *testing.T) {
	store := newFakeStore()
	store.clients["orphan"] = &core.Client{ID: "2", ClientID: "orphan", Active: true}
	r := NewRecorder(store)

	e := events.ConsentGranted{UserID: "user-1", ClientID: "orphan"}
	if err := r.HandleConsent(context.Background(), e); err == nil {
		t.Fatalf("client sin site debe fallar duro")
	}
	if store.creates != 0 {
		t.Fatalf("no debería haberse creado UserSite")
	}
}
