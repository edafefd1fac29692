package handlers

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dropDatabas3/portero/internal/store/core"
)

// fakeStore implementa core.Repository en memoria para los tests de handlers.
type fakeStore struct {
	mu sync.Mutex

	sites    map[int64]*core.Site
	clients  map[string]*core.Client // por client_id externo
	users    map[string]*core.User
	sitesRel map[string]*core.UserSite // "userID|siteID"
	consents map[string]*core.Consent  // "userID|clientID"
	invites  map[string]*core.Invitation
	deletion map[string]*core.DeletionRecord

	nextID int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sites:    make(map[int64]*core.Site),
		clients:  make(map[string]*core.Client),
		users:    make(map[string]*core.User),
		sitesRel: make(map[string]*core.UserSite),
		consents: make(map[string]*core.Consent),
		invites:  make(map[string]*core.Invitation),
		deletion: make(map[string]*core.DeletionRecord),
	}
}

func relKey(userID string, siteID int64) string { return fmt.Sprintf("%s|%d", userID, siteID) }
func consKey(userID, clientID string) string    { return userID + "|" + clientID }

func (f *fakeStore) Ping(ctx context.Context) error { return nil }

type nopTx struct{}

func (nopTx) Commit(ctx context.Context) error   { return nil }
func (nopTx) Rollback(ctx context.Context) error { return nil }

func (f *fakeStore) BeginTx(ctx context.Context) (core.Tx, error) { return nopTx{}, nil }

func (f *fakeStore) GetClientByClientID(ctx context.Context, clientID string) (*core.Client, *core.Site, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cl, ok := f.clients[clientID]
	if !ok {
		return nil, nil, core.ErrNotFound
	}
	return cl, f.sites[cl.SiteID], nil
}

func (f *fakeStore) ListClients(ctx context.Context) ([]core.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []core.Client
	for _, cl := range f.clients {
		out = append(out, *cl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out, nil
}

func (f *fakeStore) GetSiteByID(ctx context.Context, siteID int64) (*core.Site, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sites[siteID]
	if !ok {
		return nil, core.ErrNotFound
	}
	return s, nil
}

func (f *fakeStore) GetSiteByDomain(ctx context.Context, domain string) (*core.Site, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sites {
		if strings.EqualFold(s.Domain, domain) {
			return s, nil
		}
	}
	return nil, core.ErrNotFound
}

func (f *fakeStore) CreateSite(ctx context.Context, s *core.Site) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	s.ID = f.nextID
	s.CreatedAt = time.Now()
	f.sites[s.ID] = s
	return nil
}

func (f *fakeStore) CreateClient(ctx context.Context, c *core.Client) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c.CreatedAt = time.Now()
	f.clients[c.ClientID] = c
	return nil
}

func (f *fakeStore) GetUserByID(ctx context.Context, id string) (*core.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email != nil && strings.EqualFold(*u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, core.ErrNotFound
}

func (f *fakeStore) GetUserByMsisdn(ctx context.Context, msisdn string) (*core.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Msisdn != nil && *u.Msisdn == msisdn {
			cp := *u
			return &cp, nil
		}
	}
	return nil, core.ErrNotFound
}

// SaveUser replica los invariantes del repo real: cambio de contacto baja
// el flag verified correspondiente.
func (f *fakeStore) SaveUser(ctx context.Context, u *core.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if prev, ok := f.users[u.ID]; ok {
		if !sameStrPtr(prev.Email, u.Email) {
			u.EmailVerified = false
		}
		if !sameStrPtr(prev.Msisdn, u.Msisdn) {
			u.MsisdnVerified = false
		}
		u.CreatedAt = prev.CreatedAt
	} else {
		u.CreatedAt = time.Now()
	}
	u.UpdatedAt = time.Now()
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

func sameStrPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return strings.EqualFold(*a, *b)
}

func (f *fakeStore) DeleteUser(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[id]; !ok {
		return core.ErrNotFound
	}
	delete(f.users, id)
	return nil
}

func (f *fakeStore) GetOrCreateUserSite(ctx context.Context, userID string, siteID int64) (*core.UserSite, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := relKey(userID, siteID)
	if us, ok := f.sitesRel[k]; ok {
		return us, false, nil
	}
	f.nextID++
	now := time.Now()
	us := &core.UserSite{ID: f.nextID, UserID: userID, SiteID: siteID, CreatedAt: now, UpdatedAt: now}
	f.sitesRel[k] = us
	return us, true, nil
}

func (f *fakeStore) MarkUserSiteConsent(ctx context.Context, userID string, siteID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	us, ok := f.sitesRel[relKey(userID, siteID)]
	if !ok {
		return core.ErrNotFound
	}
	now := time.Now()
	us.ConsentedAt = &now
	us.UpdatedAt = now
	return nil
}

func (f *fakeStore) ListUserSites(ctx context.Context, userID string) ([]core.UserSite, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []core.UserSite
	for _, us := range f.sitesRel {
		if us.UserID == userID {
			out = append(out, *us)
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteUserSites(ctx context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for k, us := range f.sitesRel {
		if us.UserID == userID {
			delete(f.sitesRel, k)
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) GetConsent(ctx context.Context, userID, clientID string) (*core.Consent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.consents[consKey(userID, clientID)]
	if !ok {
		return nil, core.ErrNotFound
	}
	return c, nil
}

func (f *fakeStore) UpsertConsent(ctx context.Context, userID, clientID string, scopes []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := consKey(userID, clientID)
	if c, ok := f.consents[k]; ok {
		c.Scopes = scopes
		c.UpdatedAt = time.Now()
		return nil
	}
	f.nextID++
	f.consents[k] = &core.Consent{
		ID: f.nextID, UserID: userID, ClientID: clientID,
		Scopes: scopes, GrantedAt: time.Now(), UpdatedAt: time.Now(),
	}
	return nil
}

func (f *fakeStore) DeleteConsents(ctx context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for k, c := range f.consents {
		if c.UserID == userID {
			delete(f.consents, k)
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) GetInvitationByToken(ctx context.Context, token string) (*core.Invitation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, inv := range f.invites {
		if inv.Token == token {
			return inv, nil
		}
	}
	return nil, core.ErrNotFound
}

func (f *fakeStore) MarkInvitationUsed(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invites[id]
	if !ok || inv.UsedAt != nil {
		return core.ErrConflict
	}
	now := time.Now()
	inv.UsedAt = &now
	return nil
}

func (f *fakeStore) PurgeExpiredInvitations(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, inv := range f.invites {
		if inv.UsedAt == nil && time.Now().After(inv.ExpiresAt) {
			delete(f.invites, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) CreateDeletionRecord(ctx context.Context, userID string) (*core.DeletionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.deletion[userID]; ok {
		return d, nil
	}
	f.nextID++
	d := &core.DeletionRecord{ID: f.nextID, UserID: userID, RequestedAt: time.Now()}
	f.deletion[userID] = d
	return d, nil
}

func (f *fakeStore) GetDeletionRecord(ctx context.Context, userID string) (*core.DeletionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.deletion[userID]
	if !ok {
		return nil, core.ErrNotFound
	}
	return d, nil
}

func (f *fakeStore) AdvanceDeletionRecord(ctx context.Context, id int64, step int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.deletion {
		if d.ID == id && step > d.Step {
			d.Step = step
		}
	}
	return nil
}

func (f *fakeStore) CompleteDeletionRecord(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.deletion {
		if d.ID == id && d.CompletedAt == nil {
			now := time.Now()
			d.CompletedAt = &now
		}
	}
	return nil
}
