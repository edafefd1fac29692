package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dropDatabas3/portero/internal/app"
	"github.com/dropDatabas3/portero/internal/cache"
	"github.com/dropDatabas3/portero/internal/config"
	"github.com/dropDatabas3/portero/internal/email"
	"github.com/dropDatabas3/portero/internal/events"
	"github.com/dropDatabas3/portero/internal/http/middlewares"
	"github.com/dropDatabas3/portero/internal/jwt"
	"github.com/dropDatabas3/portero/internal/security/password"
	"github.com/dropDatabas3/portero/internal/session"
	"github.com/dropDatabas3/portero/internal/store/core"
	"github.com/dropDatabas3/portero/internal/tasks"
	"github.com/dropDatabas3/portero/internal/validation"
)

// testContainer arma un Container con fakes en memoria.
func testContainer(t *testing.T) (*app.Container, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	cc := cache.NewMemory("test", time.Minute)

	cfg := &config.Config{}
	cfg.OIDC.IDTokenTTL = "15m"
	cfg.Security.AdminAPIKey = "test-admin-key"

	c := &app.Container{
		Cfg:            cfg,
		Store:          store,
		Cache:          cc,
		Sessions:       session.NewManager(cc, session.Config{CookieName: "sid", TTL: time.Hour}),
		Issuer:         jwt.NewIssuer("http://localhost:8080", "test-signing-key", 15*time.Minute),
		Bus:            events.NewBus(),
		Queue:          tasks.NewMemoryQueue(16),
		PasswordPolicy: validation.Policy{MinLength: 8, RequireDigit: true},
		CodeTTL:        5 * time.Minute,
	}
	return c, store
}

// newTestSession crea una sesión persistida y devuelve el cookie asociado.
func newTestSession(t *testing.T, c *app.Container, userID string) (*session.Session, *http.Cookie) {
	t.Helper()
	rec := httptest.NewRecorder()
	s, err := c.Sessions.Create(context.Background(), rec, userID)
	if err != nil {
		t.Fatalf("Create session: %v", err)
	}
	cks := rec.Result().Cookies()
	if len(cks) == 0 {
		t.Fatal("Create no emitió cookie")
	}
	return s, cks[0]
}

func seedUser(t *testing.T, st *fakeStore, emailAddr, pwd string) *core.User {
	t.Helper()
	hash, err := password.Hash(pwd)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	u := &core.User{
		ID:           "11111111-1111-1111-1111-111111111111",
		Email:        &emailAddr,
		FirstName:    "Ana",
		LastName:     "García",
		PasswordHash: &hash,
	}
	if err := st.SaveUser(context.Background(), u); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}
	return u
}

func jsonRequest(method, target, body string) *http.Request {
	r := httptest.NewRequest(method, target, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("body no es JSON: %v (%s)", err, rec.Body.String())
	}
	return out
}

func TestLoginRotatesSessionAndPublishes(t *testing.T) {
	c, st := testContainer(t)
	u := seedUser(t, st, "ana@example.com", "Sup3rsecreto")

	var got events.LoginSucceeded
	c.Bus.OnLogin(func(ctx context.Context, e events.LoginSucceeded) error {
		got = e
		return nil
	})

	s, ck := newTestSession(t, c, "")
	s.SetExtra(session.ExtraClientID, "cli_abc")
	s.SetExtra(session.ExtraSiteID, int64(7))
	s.SetExtra(session.ExtraRedirectURI, "https://tienda.example.com/cb")
	if err := c.Sessions.Save(context.Background(), s); err != nil {
		t.Fatalf("Save: %v", err)
	}

	r := jsonRequest(http.MethodPost, "/v1/auth/login",
		`{"email":"ana@example.com","password":"Sup3rsecreto"}`)
	r.AddCookie(ck)
	r = r.WithContext(middlewares.WithSessionCtx(r.Context(), s))

	rec := httptest.NewRecorder()
	NewLoginHandler(c)(rec, r)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", rec.Code, rec.Body.String())
	}
	if body := decodeBody(t, rec); body["redirect_uri"] != "https://tienda.example.com/cb" {
		t.Fatalf("redirect_uri = %v", body["redirect_uri"])
	}
	if s.UserID != u.ID {
		t.Fatalf("la sesión no quedó asociada al user: %q", s.UserID)
	}

	// Rotación anti-fixation: el cookie nuevo no puede repetir el token.
	cks := rec.Result().Cookies()
	if len(cks) == 0 {
		t.Fatal("el login no emitió cookie")
	}
	if cks[0].Value == ck.Value {
		t.Fatal("el token de sesión no rotó tras el login")
	}

	if got.UserID != u.ID || got.ClientID != "cli_abc" || got.SiteID != 7 {
		t.Fatalf("evento de login inesperado: %+v", got)
	}
}

func TestLoginBadCredentials(t *testing.T) {
	c, st := testContainer(t)
	seedUser(t, st, "ana@example.com", "Sup3rsecreto")

	cases := []struct {
		name string
		body string
	}{
		{"password incorrecto", `{"email":"ana@example.com","password":"incorrecto1"}`},
		// Cuenta inexistente responde idéntico: no filtramos qué emails existen.
		{"cuenta inexistente", `{"email":"nadie@example.com","password":"Sup3rsecreto"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, ck := newTestSession(t, c, "")
			r := jsonRequest(http.MethodPost, "/v1/auth/login", tc.body)
			r.AddCookie(ck)
			r = r.WithContext(middlewares.WithSessionCtx(r.Context(), s))

			rec := httptest.NewRecorder()
			NewLoginHandler(c)(rec, r)

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
			if body := decodeBody(t, rec); body["error"] != "invalid_credentials" {
				t.Fatalf("error = %v", body["error"])
			}
		})
	}
}

func TestLoginBlockedAccount(t *testing.T) {
	c, st := testContainer(t)
	u := seedUser(t, st, "ana@example.com", "Sup3rsecreto")
	u.Blocked = true
	if err := st.SaveUser(context.Background(), u); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}

	s, ck := newTestSession(t, c, "")
	r := jsonRequest(http.MethodPost, "/v1/auth/login",
		`{"email":"ana@example.com","password":"Sup3rsecreto"}`)
	r.AddCookie(ck)
	r = r.WithContext(middlewares.WithSessionCtx(r.Context(), s))

	rec := httptest.NewRecorder()
	NewLoginHandler(c)(rec, r)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] != "account_blocked" {
		t.Fatalf("error = %v", body["error"])
	}
}

func TestLogoutValidatesPostLogoutRedirect(t *testing.T) {
	c, st := testContainer(t)
	u := seedUser(t, st, "ana@example.com", "Sup3rsecreto")
	st.clients["cli_abc"] = &core.Client{
		ID:                     "int-1",
		ClientID:               "cli_abc",
		PostLogoutRedirectURIs: []string{"https://tienda.example.com/adios"},
	}

	var logoutSeen bool
	c.Bus.OnLogout(func(ctx context.Context, e events.LogoutSucceeded) error {
		logoutSeen = true
		if e.UserID != u.ID {
			t.Errorf("evento con user %q, want %q", e.UserID, u.ID)
		}
		return nil
	})

	t.Run("destino registrado", func(t *testing.T) {
		s, ck := newTestSession(t, c, u.ID)
		s.SetExtra(session.ExtraClientID, "cli_abc")
		if err := c.Sessions.Save(context.Background(), s); err != nil {
			t.Fatalf("Save: %v", err)
		}

		r := httptest.NewRequest(http.MethodPost,
			"/v1/auth/logout?post_logout_redirect_uri=https%3A%2F%2Ftienda.example.com%2Fadios", nil)
		r.AddCookie(ck)
		r = r.WithContext(middlewares.WithSessionCtx(r.Context(), s))

		rec := httptest.NewRecorder()
		NewLogoutHandler(c)(rec, r)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200 (%s)", rec.Code, rec.Body.String())
		}
		if body := decodeBody(t, rec); body["redirect_uri"] != "https://tienda.example.com/adios" {
			t.Fatalf("redirect_uri = %v", body["redirect_uri"])
		}
		if !logoutSeen {
			t.Fatal("no se publicó LogoutSucceeded")
		}
		// La sesión tiene que haber salido del cache.
		if _, err := c.Sessions.Get(context.Background(), requestWithCookie(ck)); err != session.ErrNoSession {
			t.Fatalf("la sesión sigue viva tras el logout: %v", err)
		}
	})

	t.Run("destino no registrado se descarta", func(t *testing.T) {
		s, ck := newTestSession(t, c, u.ID)
		s.SetExtra(session.ExtraClientID, "cli_abc")
		if err := c.Sessions.Save(context.Background(), s); err != nil {
			t.Fatalf("Save: %v", err)
		}

		r := httptest.NewRequest(http.MethodPost,
			"/v1/auth/logout?post_logout_redirect_uri=https%3A%2F%2Fmalo.example.com%2F", nil)
		r.AddCookie(ck)
		r = r.WithContext(middlewares.WithSessionCtx(r.Context(), s))

		rec := httptest.NewRecorder()
		NewLogoutHandler(c)(rec, r)

		if rec.Code != http.StatusNoContent {
			t.Fatalf("status = %d, want 204", rec.Code)
		}
	})

	t.Run("sin sesión es no-op", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/v1/auth/logout", nil)
		rec := httptest.NewRecorder()
		NewLogoutHandler(c)(rec, r)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("status = %d, want 204", rec.Code)
		}
	})
}

func requestWithCookie(ck *http.Cookie) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(ck)
	return r
}

func TestRegisterCreatesAccountAndEnqueuesVerification(t *testing.T) {
	c, st := testContainer(t)

	r := jsonRequest(http.MethodPost, "/v1/auth/register",
		`{"email":"nueva@example.com","first_name":"Nueva","last_name":"Cuenta","password":"Sup3rsecreto"}`)
	rec := httptest.NewRecorder()
	NewRegisterHandler(c)(rec, r)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (%s)", rec.Code, rec.Body.String())
	}
	userID, _ := decodeBody(t, rec)["user_id"].(string)
	if userID == "" {
		t.Fatal("respuesta sin user_id")
	}

	u, err := st.GetUserByEmail(context.Background(), "nueva@example.com")
	if err != nil {
		t.Fatalf("la cuenta no quedó persistida: %v", err)
	}
	if u.ID != userID || u.EmailVerified {
		t.Fatalf("cuenta inesperada: %+v", u)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	task, err := c.Queue.Dequeue(ctx)
	if err != nil {
		t.Fatalf("no se encoló ninguna task: %v", err)
	}
	if task.Type != email.TaskSendVerification {
		t.Fatalf("task.Type = %q, want %q", task.Type, email.TaskSendVerification)
	}
}

func TestRegisterRejectsWeakPasswordAndDuplicates(t *testing.T) {
	c, st := testContainer(t)
	seedUser(t, st, "ana@example.com", "Sup3rsecreto")

	cases := []struct {
		name     string
		body     string
		status   int
		errorStr string
	}{
		{"password débil", `{"email":"otra@example.com","password":"corta1"}`, http.StatusBadRequest, "weak_password"},
		{"email duplicado", `{"email":"ana@example.com","password":"Sup3rsecreto"}`, http.StatusConflict, "already_registered"},
		{"email inválido", `{"email":"no-es-email","password":"Sup3rsecreto"}`, http.StatusBadRequest, "invalid_email"},
		{"sin contacto", `{"password":"Sup3rsecreto"}`, http.StatusBadRequest, "missing_fields"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewRegisterHandler(c)(rec, jsonRequest(http.MethodPost, "/v1/auth/register", tc.body))
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tc.status, rec.Body.String())
			}
			if body := decodeBody(t, rec); body["error"] != tc.errorStr {
				t.Fatalf("error = %v, want %q", body["error"], tc.errorStr)
			}
		})
	}
}

func TestRegisterWithInvitation(t *testing.T) {
	c, st := testContainer(t)
	st.sites[3] = &core.Site{ID: 3, Name: "Tienda", Domain: "tienda.example.com"}
	st.invites["inv-1"] = &core.Invitation{
		ID:        "inv-1",
		SiteID:    3,
		Email:     "invitada@example.com",
		Token:     "tok-inv",
		ExpiresAt: time.Now().Add(time.Hour),
	}

	r := jsonRequest(http.MethodPost, "/v1/auth/register",
		`{"email":"invitada@example.com","password":"Sup3rsecreto","invitation_token":"tok-inv"}`)
	rec := httptest.NewRecorder()
	NewRegisterHandler(c)(rec, r)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (%s)", rec.Code, rec.Body.String())
	}
	userID, _ := decodeBody(t, rec)["user_id"].(string)

	sites, err := st.ListUserSites(context.Background(), userID)
	if err != nil || len(sites) != 1 || sites[0].SiteID != 3 {
		t.Fatalf("UserSite no creado: %v %v", sites, err)
	}
	if st.invites["inv-1"].UsedAt == nil {
		t.Fatal("la invitación no quedó marcada usada")
	}

	t.Run("invitación usada se rechaza", func(t *testing.T) {
		r := jsonRequest(http.MethodPost, "/v1/auth/register",
			`{"email":"otra@example.com","password":"Sup3rsecreto","invitation_token":"tok-inv"}`)
		rec := httptest.NewRecorder()
		NewRegisterHandler(c)(rec, r)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
		if body := decodeBody(t, rec); body["error"] != "invalid_invitation" {
			t.Fatalf("error = %v", body["error"])
		}
	})
}

func TestVerifyEmailSingleUse(t *testing.T) {
	c, st := testContainer(t)
	u := seedUser(t, st, "ana@example.com", "Sup3rsecreto")

	const tok = "token-de-prueba"
	if err := c.Cache.Set(context.Background(), email.VerificationKey(tok), u.ID, time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	r := httptest.NewRequest(http.MethodGet, "/v1/auth/verify-email?token="+tok, nil)
	rec := httptest.NewRecorder()
	NewVerifyEmailHandler(c)(rec, r)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", rec.Code, rec.Body.String())
	}
	got, err := st.GetUserByID(context.Background(), u.ID)
	if err != nil || !got.EmailVerified {
		t.Fatalf("el email no quedó verificado: %+v %v", got, err)
	}

	// Segundo uso del mismo token: el link ya se consumió.
	rec = httptest.NewRecorder()
	NewVerifyEmailHandler(c)(rec, httptest.NewRequest(http.MethodGet, "/v1/auth/verify-email?token="+tok, nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("segundo canje: status = %d, want 400", rec.Code)
	}
}
