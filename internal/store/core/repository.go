package core

import (
	"context"
)

type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type Repository interface {
	Ping(ctx context.Context) error
	BeginTx(ctx context.Context) (Tx, error)

	// Clients / sites
	GetClientByClientID(ctx context.Context, clientID string) (*Client, *Site, error)
	ListClients(ctx context.Context) ([]Client, error)
	GetSiteByID(ctx context.Context, siteID int64) (*Site, error)
	GetSiteByDomain(ctx context.Context, domain string) (*Site, error)
	CreateSite(ctx context.Context, s *Site) error
	CreateClient(ctx context.Context, c *Client) error

	// Usuarios
	GetUserByID(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByMsisdn(ctx context.Context, msisdn string) (*User, error)
	// SaveUser crea o actualiza. Aplica los invariantes de cuenta:
	// cambio de email/msisdn baja el flag verified correspondiente,
	// email vacío persiste como NULL, y Q se recalcula siempre.
	SaveUser(ctx context.Context, u *User) error
	DeleteUser(ctx context.Context, id string) error

	// UserSites
	GetOrCreateUserSite(ctx context.Context, userID string, siteID int64) (*UserSite, bool, error)
	// MarkUserSiteConsent sella consented_at/updated_at de la relación.
	MarkUserSiteConsent(ctx context.Context, userID string, siteID int64) error
	ListUserSites(ctx context.Context, userID string) ([]UserSite, error)
	DeleteUserSites(ctx context.Context, userID string) (int64, error)

	// Consents
	GetConsent(ctx context.Context, userID, clientID string) (*Consent, error)
	UpsertConsent(ctx context.Context, userID, clientID string, scopes []string) error
	DeleteConsents(ctx context.Context, userID string) (int64, error)

	// Invitations
	GetInvitationByToken(ctx context.Context, token string) (*Invitation, error)
	MarkInvitationUsed(ctx context.Context, id string) error
	PurgeExpiredInvitations(ctx context.Context) (int64, error)

	// Deletion
	CreateDeletionRecord(ctx context.Context, userID string) (*DeletionRecord, error)
	GetDeletionRecord(ctx context.Context, userID string) (*DeletionRecord, error)
	AdvanceDeletionRecord(ctx context.Context, id int64, step int) error
	CompleteDeletionRecord(ctx context.Context, id int64) error
}
