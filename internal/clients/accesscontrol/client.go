// Package accesscontrol consume la API del servicio Access Control.
// Este servicio es dueño de los Sites y las invitaciones; portero sólo lee
// y dispara borrados.
package accesscontrol

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/dropDatabas3/portero/internal/clients/httpapi"
)

type Site struct {
	ID       int64  `json:"id"`
	ClientID string `json:"client_id"` // id interno del client, no el token externo
	Domain   string `json:"domain"`
	Name     string `json:"name"`
	Active   bool   `json:"is_active"`
}

type Invitation struct {
	ID        string     `json:"id"`
	SiteID    int64      `json:"site_id"`
	Email     string     `json:"email"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
}

type Client struct {
	api *httpapi.Client
}

func New(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{api: httpapi.New("access-control", baseURL, apiKey, timeout)}
}

// SiteList lista los sites del client interno dado.
// La relación Client↔Site es 1:1: cero resultados es un error de
// provisioning que el caller debe tratar como fatal.
func (c *Client) SiteList(ctx context.Context, clientRef string) ([]Site, error) {
	var out struct {
		Results []Site `json:"results"`
	}
	p := "/api/v1/sites?client_id=" + url.QueryEscape(clientRef)
	if err := c.api.Do(ctx, http.MethodGet, p, nil, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// SiteForClient resuelve exactamente un site para el client interno.
func (c *Client) SiteForClient(ctx context.Context, clientRef string) (*Site, error) {
	sites, err := c.SiteList(ctx, clientRef)
	if err != nil {
		return nil, err
	}
	if len(sites) != 1 {
		return nil, fmt.Errorf("access-control: expected exactly one site for client %q, got %d", clientRef, len(sites))
	}
	return &sites[0], nil
}

func (c *Client) InvitationRead(ctx context.Context, id string) (*Invitation, error) {
	var inv Invitation
	if err := c.api.Do(ctx, http.MethodGet, "/api/v1/invitations/"+url.PathEscape(id), nil, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (c *Client) InvitationRedeem(ctx context.Context, id, userID string) error {
	body := map[string]string{"user_id": userID}
	return c.api.Do(ctx, http.MethodPost, "/api/v1/invitations/"+url.PathEscape(id)+"/redeem", body, nil)
}

// PurgeExpiredInvitations retorna cuántas invitaciones vencidas se borraron.
func (c *Client) PurgeExpiredInvitations(ctx context.Context) (int64, error) {
	var out struct {
		Amount int64 `json:"amount"`
	}
	if err := c.api.Do(ctx, http.MethodPost, "/api/v1/invitations/purge-expired", nil, &out); err != nil {
		return 0, err
	}
	return out.Amount, nil
}

// DeleteUserData borra todo lo del usuario en Access Control.
// Retorna el affected-row count reportado (se loguea, no se verifica).
func (c *Client) DeleteUserData(ctx context.Context, userID string) (int64, error) {
	var out struct {
		Amount int64 `json:"amount"`
	}
	if err := c.api.Do(ctx, http.MethodDelete, "/api/v1/users/"+url.PathEscape(userID)+"/data", nil, &out); err != nil {
		return 0, err
	}
	return out.Amount, nil
}
