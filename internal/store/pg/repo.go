package pg

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/portero/internal/store/core"
)

// Repo implementa core.Repository sobre pgxpool.
type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

func (r *Repo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

type pgxTx struct{ tx pgx.Tx }

func (t pgxTx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t pgxTx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

func (r *Repo) BeginTx(ctx context.Context) (core.Tx, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return pgxTx{tx: tx}, nil
}

// ─── Clients / Sites ───

func (r *Repo) GetClientByClientID(ctx context.Context, clientID string) (*core.Client, *core.Site, error) {
	const query = `
		SELECT c.id, c.site_id, c.name, c.client_id, c.response_type,
		       c.redirect_uris, c.post_logout_redirect_uris, c.scopes,
		       c.client_uri, c.terms_url, c.website_url, c.reuse_consent,
		       c.active, c.created_at,
		       s.id, s.name, s.domain, s.theme, s.created_at
		FROM oidc_client c
		JOIN site s ON s.id = c.site_id
		WHERE c.client_id = $1
	`
	var c core.Client
	var s core.Site
	err := r.pool.QueryRow(ctx, query, clientID).Scan(
		&c.ID, &c.SiteID, &c.Name, &c.ClientID, &c.ResponseType,
		&c.RedirectURIs, &c.PostLogoutRedirectURIs, &c.Scopes,
		&c.ClientURI, &c.TermsURL, &c.WebsiteURL, &c.ReuseConsent,
		&c.Active, &c.CreatedAt,
		&s.ID, &s.Name, &s.Domain, &s.Theme, &s.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil, core.ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	return &c, &s, nil
}

func (r *Repo) ListClients(ctx context.Context) ([]core.Client, error) {
	const query = `
		SELECT id, site_id, name, client_id, response_type,
		       redirect_uris, post_logout_redirect_uris, scopes,
		       client_uri, terms_url, website_url, reuse_consent,
		       active, created_at
		FROM oidc_client
		ORDER BY site_id, name
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Client
	for rows.Next() {
		var c core.Client
		err := rows.Scan(
			&c.ID, &c.SiteID, &c.Name, &c.ClientID, &c.ResponseType,
			&c.RedirectURIs, &c.PostLogoutRedirectURIs, &c.Scopes,
			&c.ClientURI, &c.TermsURL, &c.WebsiteURL, &c.ReuseConsent,
			&c.Active, &c.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repo) GetSiteByID(ctx context.Context, siteID int64) (*core.Site, error) {
	const query = `SELECT id, name, domain, theme, created_at FROM site WHERE id = $1`
	var s core.Site
	err := r.pool.QueryRow(ctx, query, siteID).Scan(&s.ID, &s.Name, &s.Domain, &s.Theme, &s.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, core.ErrNotFound
	}
	return &s, err
}

func (r *Repo) GetSiteByDomain(ctx context.Context, domain string) (*core.Site, error) {
	const query = `SELECT id, name, domain, theme, created_at FROM site WHERE domain = $1`
	var s core.Site
	err := r.pool.QueryRow(ctx, query, strings.ToLower(domain)).Scan(&s.ID, &s.Name, &s.Domain, &s.Theme, &s.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, core.ErrNotFound
	}
	return &s, err
}

func (r *Repo) CreateSite(ctx context.Context, s *core.Site) error {
	const query = `
		INSERT INTO site (name, domain, theme, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, created_at
	`
	return r.pool.QueryRow(ctx, query, s.Name, strings.ToLower(s.Domain), s.Theme).Scan(&s.ID, &s.CreatedAt)
}

func (r *Repo) CreateClient(ctx context.Context, c *core.Client) error {
	const query = `
		INSERT INTO oidc_client (
			id, site_id, name, client_id, response_type,
			redirect_uris, post_logout_redirect_uris, scopes,
			client_uri, terms_url, website_url, reuse_consent, active, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW())
		RETURNING created_at
	`
	return r.pool.QueryRow(ctx, query,
		c.ID, c.SiteID, c.Name, c.ClientID, c.ResponseType,
		c.RedirectURIs, c.PostLogoutRedirectURIs, c.Scopes,
		c.ClientURI, c.TermsURL, c.WebsiteURL, c.ReuseConsent, c.Active,
	).Scan(&c.CreatedAt)
}

// ─── Users ───

const userColumns = `
	id, username, email, email_verified, msisdn, msisdn_verified,
	first_name, last_name, nickname, gender, birth_date, country,
	organisation_id, password_hash, q, blocked, created_at, updated_at
`

func scanUser(row pgx.Row) (*core.User, error) {
	var u core.User
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.EmailVerified, &u.Msisdn, &u.MsisdnVerified,
		&u.FirstName, &u.LastName, &u.Nickname, &u.Gender, &u.BirthDate, &u.Country,
		&u.OrganisationID, &u.PasswordHash, &u.Q, &u.Blocked, &u.CreatedAt, &u.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *Repo) GetUserByID(ctx context.Context, id string) (*core.User, error) {
	const query = `SELECT ` + userColumns + ` FROM core_user WHERE id = $1`
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

func (r *Repo) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	const query = `SELECT ` + userColumns + ` FROM core_user WHERE LOWER(email) = LOWER($1)`
	return scanUser(r.pool.QueryRow(ctx, query, email))
}

func (r *Repo) GetUserByMsisdn(ctx context.Context, msisdn string) (*core.User, error) {
	const query = `SELECT ` + userColumns + ` FROM core_user WHERE msisdn = $1`
	return scanUser(r.pool.QueryRow(ctx, query, msisdn))
}

// buildQ recalcula el campo de búsqueda denormalizado. La lista de campos
// es fija: contacto, nombres, username y nickname.
func buildQ(u *core.User) string {
	parts := make([]string, 0, 6)
	if u.Username != nil && *u.Username != "" {
		parts = append(parts, strings.ToLower(*u.Username))
	}
	if u.Email != nil && *u.Email != "" {
		parts = append(parts, strings.ToLower(*u.Email))
	}
	if u.Msisdn != nil && *u.Msisdn != "" {
		parts = append(parts, *u.Msisdn)
	}
	if u.FirstName != "" {
		parts = append(parts, strings.ToLower(u.FirstName))
	}
	if u.LastName != "" {
		parts = append(parts, strings.ToLower(u.LastName))
	}
	if u.Nickname != "" {
		parts = append(parts, strings.ToLower(u.Nickname))
	}
	return strings.Join(parts, " ")
}

// normalizeContact convierte strings vacíos a NULL para respetar los
// índices únicos parciales sobre username/email/msisdn.
func normalizeContact(p *string) *string {
	if p == nil || strings.TrimSpace(*p) == "" {
		return nil
	}
	v := strings.TrimSpace(*p)
	return &v
}

// SaveUser crea o actualiza una cuenta.
// Invariantes que aplica SIEMPRE, venga de donde venga el caller:
//   - email/msisdn distinto al persistido ⇒ el flag verified baja a false
//   - email/msisdn vacío ⇒ NULL en la columna (no string vacío)
//   - Q se recalcula a partir de los campos actuales
func (r *Repo) SaveUser(ctx context.Context, u *core.User) error {
	u.Username = normalizeContact(u.Username)
	u.Email = normalizeContact(u.Email)
	u.Msisdn = normalizeContact(u.Msisdn)

	prev, err := r.GetUserByID(ctx, u.ID)
	if err != nil && err != core.ErrNotFound {
		return err
	}
	if prev != nil {
		if !sameContact(prev.Email, u.Email) {
			u.EmailVerified = false
		}
		if !sameContact(prev.Msisdn, u.Msisdn) {
			u.MsisdnVerified = false
		}
	}
	u.Q = buildQ(u)

	const query = `
		INSERT INTO core_user (
			id, username, email, email_verified, msisdn, msisdn_verified,
			first_name, last_name, nickname, gender, birth_date, country,
			organisation_id, password_hash, q, blocked, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			username = $2, email = $3, email_verified = $4, msisdn = $5, msisdn_verified = $6,
			first_name = $7, last_name = $8, nickname = $9, gender = $10,
			birth_date = $11, country = $12, organisation_id = $13,
			password_hash = $14, q = $15, blocked = $16,
			updated_at = NOW()
		RETURNING created_at, updated_at
	`
	return r.pool.QueryRow(ctx, query,
		u.ID, u.Username, u.Email, u.EmailVerified, u.Msisdn, u.MsisdnVerified,
		u.FirstName, u.LastName, u.Nickname, u.Gender, u.BirthDate, u.Country,
		u.OrganisationID, u.PasswordHash, u.Q, u.Blocked,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
}

func sameContact(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return strings.EqualFold(*a, *b)
}

func (r *Repo) DeleteUser(ctx context.Context, id string) error {
	const query = `DELETE FROM core_user WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

// ─── UserSites ───

// GetOrCreateUserSite registra la relación usuario↔site si no existe.
// Retorna created=true sólo cuando la fila es nueva. Concurrente-safe:
// el ON CONFLICT absorbe la carrera entre dos primeros-logins simultáneos.
func (r *Repo) GetOrCreateUserSite(ctx context.Context, userID string, siteID int64) (*core.UserSite, bool, error) {
	const insert = `
		INSERT INTO user_site (user_id, site_id, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (user_id, site_id) DO NOTHING
		RETURNING id, created_at, updated_at
	`
	var us core.UserSite
	us.UserID = userID
	us.SiteID = siteID

	err := r.pool.QueryRow(ctx, insert, userID, siteID).Scan(&us.ID, &us.CreatedAt, &us.UpdatedAt)
	if err == nil {
		return &us, true, nil
	}
	if err != pgx.ErrNoRows {
		return nil, false, err
	}

	// Ya existía: leer la fila vigente.
	const sel = `
		SELECT id, user_id, site_id, consented_at, created_at, updated_at
		FROM user_site WHERE user_id = $1 AND site_id = $2
	`
	err = r.pool.QueryRow(ctx, sel, userID, siteID).Scan(
		&us.ID, &us.UserID, &us.SiteID, &us.ConsentedAt, &us.CreatedAt, &us.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, false, core.ErrNotFound
	}
	if err != nil {
		return nil, false, err
	}
	return &us, false, nil
}

// MarkUserSiteConsent sella el timestamp del consent sobre la relación.
// Cada consent nuevo lo re-sella; la fila debe existir de antemano.
func (r *Repo) MarkUserSiteConsent(ctx context.Context, userID string, siteID int64) error {
	const query = `
		UPDATE user_site SET consented_at = NOW(), updated_at = NOW()
		WHERE user_id = $1 AND site_id = $2
	`
	tag, err := r.pool.Exec(ctx, query, userID, siteID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *Repo) ListUserSites(ctx context.Context, userID string) ([]core.UserSite, error) {
	const query = `
		SELECT id, user_id, site_id, consented_at, created_at, updated_at
		FROM user_site WHERE user_id = $1 ORDER BY created_at
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.UserSite
	for rows.Next() {
		var us core.UserSite
		if err := rows.Scan(&us.ID, &us.UserID, &us.SiteID, &us.ConsentedAt, &us.CreatedAt, &us.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, us)
	}
	return out, rows.Err()
}

func (r *Repo) DeleteUserSites(ctx context.Context, userID string) (int64, error) {
	const query = `DELETE FROM user_site WHERE user_id = $1`
	tag, err := r.pool.Exec(ctx, query, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ─── Consents ───

func (r *Repo) GetConsent(ctx context.Context, userID, clientID string) (*core.Consent, error) {
	const query = `
		SELECT id, user_id, client_id, scopes, granted_at, updated_at
		FROM user_consent WHERE user_id = $1 AND client_id = $2
	`
	var c core.Consent
	err := r.pool.QueryRow(ctx, query, userID, clientID).Scan(
		&c.ID, &c.UserID, &c.ClientID, &c.Scopes, &c.GrantedAt, &c.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, core.ErrNotFound
	}
	return &c, err
}

func (r *Repo) UpsertConsent(ctx context.Context, userID, clientID string, scopes []string) error {
	const query = `
		INSERT INTO user_consent (user_id, client_id, scopes, granted_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (user_id, client_id) DO UPDATE SET scopes = $3, updated_at = NOW()
	`
	_, err := r.pool.Exec(ctx, query, userID, clientID, scopes)
	return err
}

func (r *Repo) DeleteConsents(ctx context.Context, userID string) (int64, error) {
	const query = `DELETE FROM user_consent WHERE user_id = $1`
	tag, err := r.pool.Exec(ctx, query, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ─── Invitations ───

func (r *Repo) GetInvitationByToken(ctx context.Context, token string) (*core.Invitation, error) {
	const query = `
		SELECT id, site_id, email, token, expires_at, used_at, created_at
		FROM invitation WHERE token = $1
	`
	var inv core.Invitation
	err := r.pool.QueryRow(ctx, query, token).Scan(
		&inv.ID, &inv.SiteID, &inv.Email, &inv.Token, &inv.ExpiresAt, &inv.UsedAt, &inv.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, core.ErrNotFound
	}
	return &inv, err
}

func (r *Repo) MarkInvitationUsed(ctx context.Context, id string) error {
	const query = `UPDATE invitation SET used_at = NOW() WHERE id = $1 AND used_at IS NULL`
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrConflict
	}
	return nil
}

func (r *Repo) PurgeExpiredInvitations(ctx context.Context) (int64, error) {
	const query = `DELETE FROM invitation WHERE expires_at < NOW() AND used_at IS NULL`
	tag, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ─── Deletion ───

func (r *Repo) CreateDeletionRecord(ctx context.Context, userID string) (*core.DeletionRecord, error) {
	const query = `
		INSERT INTO deletion_record (user_id, requested_at, step)
		VALUES ($1, NOW(), 0)
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING id, user_id, requested_at, completed_at, step
	`
	var d core.DeletionRecord
	err := r.pool.QueryRow(ctx, query, userID).Scan(&d.ID, &d.UserID, &d.RequestedAt, &d.CompletedAt, &d.Step)
	return &d, err
}

func (r *Repo) GetDeletionRecord(ctx context.Context, userID string) (*core.DeletionRecord, error) {
	const query = `SELECT id, user_id, requested_at, completed_at, step FROM deletion_record WHERE user_id = $1`
	var d core.DeletionRecord
	err := r.pool.QueryRow(ctx, query, userID).Scan(&d.ID, &d.UserID, &d.RequestedAt, &d.CompletedAt, &d.Step)
	if err == pgx.ErrNoRows {
		return nil, core.ErrNotFound
	}
	return &d, err
}

func (r *Repo) AdvanceDeletionRecord(ctx context.Context, id int64, step int) error {
	// GREATEST evita retroceder el cursor ante un replay concurrente.
	const query = `UPDATE deletion_record SET step = GREATEST(step, $2) WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, id, step)
	return err
}

func (r *Repo) CompleteDeletionRecord(ctx context.Context, id int64) error {
	const query = `UPDATE deletion_record SET completed_at = NOW() WHERE id = $1 AND completed_at IS NULL`
	_, err := r.pool.Exec(ctx, query, id)
	return err
}
