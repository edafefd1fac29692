package oidc

import (
	"context"
	"errors"
	"testing"

	"github.com/dropDatabas3/portero/internal/store/core"
)

type fakeClients struct {
	clients map[string]*core.Client
	sites   map[string]*core.Site
}

func (f *fakeClients) GetClientByClientID(ctx context.Context, clientID string) (*core.Client, *core.Site, error) {
	cl, ok := f.clients[clientID]
	if !ok {
		return nil, nil, core.ErrNotFound
	}
	return cl, f.sites[clientID], nil
}

func newFake() *fakeClients {
	return &fakeClients{
		clients: map[string]*core.Client{
			"client-a": {
				ID:           "1",
				ClientID:     "client-a",
				SiteID:       7,
				Name:         "Acme",
				Active:       true,
				RedirectURIs: []string{"https://a.example/cb", "https://a.example/cb2"},
			},
			"client-off": {
				ID:           "2",
				ClientID:     "client-off",
				SiteID:       8,
				Active:       false,
				RedirectURIs: []string{"https://off.example/cb"},
			},
			"client-orphan": {
				ID:           "3",
				ClientID:     "client-orphan",
				Active:       true,
				RedirectURIs: []string{"https://o.example/cb"},
			},
		},
		sites: map[string]*core.Site{
			"client-a":   {ID: 7, Domain: "a.example", Name: "Site A"},
			"client-off": {ID: 8, Domain: "off.example"},
			// client-orphan sin site: error de provisioning
		},
	}
}

func TestValidate(t *testing.T) {
	v := NewValidator(newFake())
	ctx := context.Background()

	cases := []struct {
		name        string
		clientID    string
		redirectURI string
		wantErr     error
	}{
		{"ok", "client-a", "https://a.example/cb", nil},
		{"ok segunda uri", "client-a", "https://a.example/cb2", nil},
		{"client inexistente", "nope", "https://a.example/cb", ErrClientNotFound},
		{"uri no registrada", "client-a", "https://evil.example/cb", ErrRedirectURIMismatch},
		{"uri con query extra", "client-a", "https://a.example/cb?x=1", ErrRedirectURIMismatch},
		{"client inactivo", "client-off", "https://off.example/cb", ErrClientInactive},
		{"client sin site", "client-orphan", "https://o.example/cb", ErrSiteNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cl, site, err := v.Validate(ctx, tc.clientID, tc.redirectURI)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if cl == nil || site == nil {
				t.Fatalf("client/site nil en caso exitoso")
			}
			if site.ID != 7 {
				t.Fatalf("site.ID = %d", site.ID)
			}
		})
	}
}

func TestCheckSameDomain(t *testing.T) {
	cases := []struct {
		name        string
		redirectURI string
		host        string
		ok          bool
	}{
		{"relativa pasa", "/relative/path", "auth.example", true},
		{"mismo host pasa", "https://auth.example/x", "auth.example", true},
		{"mismo host con puerto", "https://auth.example:443/x", "auth.example", true},
		{"otro host rechaza", "https://other.example/x", "auth.example", false},
		{"subdominio rechaza", "https://evil.auth.example/x", "auth.example", false},
		{"schemeless con host rechaza", "//other.example/x", "auth.example", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckSameDomain(tc.redirectURI, tc.host)
			if tc.ok && err != nil {
				t.Fatalf("esperaba pasar, got %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrClientIDMissing) {
				t.Fatalf("esperaba ErrClientIDMissing, got %v", err)
			}
		})
	}
}
