package core

import "time"

// Site es la web que consume el login centralizado. Cada client OIDC
// pertenece a exactamente un site.
type Site struct {
	ID        int64
	Name      string
	Domain    string
	Theme     string
	CreatedAt time.Time
}

type Client struct {
	ID                     string    `json:"id"`
	SiteID                 int64     `json:"site_id"`
	Name                   string    `json:"name"`
	ClientID               string    `json:"client_id"` // token externo, único e inmutable
	ResponseType           string    `json:"response_type"`
	RedirectURIs           []string  `json:"redirect_uris"`
	PostLogoutRedirectURIs []string  `json:"post_logout_redirect_uris"`
	Scopes                 []string  `json:"scopes"`
	ClientURI              string    `json:"client_uri"`
	TermsURL               string    `json:"terms_url"`
	WebsiteURL             string    `json:"website_url"`
	ReuseConsent           bool      `json:"reuse_consent"`
	Active                 bool      `json:"active"`
	CreatedAt              time.Time `json:"created_at"`
}

// User es la cuenta central. El ID es un UUID v1: el timestamp embebido
// ordena cuentas por fecha de creación sin columna extra.
type User struct {
	ID             string
	Username       *string // opcional, único si existe
	Email          *string
	EmailVerified  bool
	Msisdn         *string
	MsisdnVerified bool
	FirstName      string
	LastName       string
	Nickname       string
	Gender         string
	BirthDate      *time.Time
	Country        string
	// OrganisationID referencia una organisation de Access Control; entero
	// plano, no FK (misma regla que UserSite.SiteID).
	OrganisationID *int64
	PasswordHash   *string
	// Q es el campo de búsqueda denormalizado (contacto + nombres +
	// username/nickname, lowercased). Se recalcula en cada save.
	Q         string
	Blocked   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserSite registra la primera relación usuario↔site. Se crea de forma
// perezosa en el primer login o consent sobre ese site; ConsentedAt marca
// el último consent otorgado sobre el site (NULL si la relación nació por
// invitación y todavía no hubo consent).
type UserSite struct {
	ID          int64
	UserID      string
	SiteID      int64
	ConsentedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Consent struct {
	ID        int64
	UserID    string
	ClientID  string
	Scopes    []string
	GrantedAt time.Time
	UpdatedAt time.Time
}

// Invitation permite registrar una cuenta pre-aprobada para un site.
type Invitation struct {
	ID        string
	SiteID    int64
	Email     string
	Token     string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// DeletionRecord deja rastro local de un borrado de cuenta (GDPR).
// Los datos en sí viajan al user data store; acá sólo queda el esqueleto.
type DeletionRecord struct {
	ID          int64
	UserID      string
	RequestedAt time.Time
	CompletedAt *time.Time
	// Step alcanzado por el orquestador; permite replay idempotente.
	Step int
}
