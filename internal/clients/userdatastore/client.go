// Package userdatastore consume la API del User Data Store: datos de perfil
// por site y los tombstones del flujo de borrado de cuenta.
package userdatastore

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dropDatabas3/portero/internal/clients/httpapi"
)

type DeletedUser struct {
	ID        string     `json:"id"` // mismo UUID que el CoreUser borrado
	DeleterID string     `json:"deleter_id"`
	Reason    string     `json:"reason"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

type DeletedUserSite struct {
	DeletedUserID string `json:"deleted_user_id"`
	SiteID        int64  `json:"site_id"`
}

type UserSiteData struct {
	UserID string         `json:"user_id"`
	SiteID int64          `json:"site_id"`
	Data   map[string]any `json:"data"`
}

type SiteDataSchema struct {
	SiteID int64          `json:"site_id"`
	Schema map[string]any `json:"schema"`
}

type Client struct {
	api *httpapi.Client
}

func New(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{api: httpapi.New("user-data-store", baseURL, apiKey, timeout)}
}

// UserSiteDataRead trae los datos de perfil del usuario en un site. Las
// escrituras son del backend de cada site; acá sólo se leen.
func (c *Client) UserSiteDataRead(ctx context.Context, userID string, siteID int64) (*UserSiteData, error) {
	var out UserSiteData
	p := "/api/v1/usersitedata/" + url.PathEscape(userID) + "/" + itoa(siteID)
	if err := c.api.Do(ctx, http.MethodGet, p, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SiteDataSchemaList(ctx context.Context, siteID int64) ([]SiteDataSchema, error) {
	var out struct {
		Results []SiteDataSchema `json:"results"`
	}
	if err := c.api.Do(ctx, http.MethodGet, "/api/v1/sitedataschemas?site_id="+itoa(siteID), nil, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// DeletedUserCreate crea el tombstone del usuario. Idempotente del lado del
// store: repetir el POST con el mismo id no duplica.
func (c *Client) DeletedUserCreate(ctx context.Context, d DeletedUser) error {
	return c.api.Do(ctx, http.MethodPost, "/api/v1/deletedusers", d, nil)
}

// DeletedUserUpdate parchea el tombstone (marca deleted_at al completar).
func (c *Client) DeletedUserUpdate(ctx context.Context, id string, deletedAt time.Time) error {
	body := map[string]string{"deleted_at": deletedAt.UTC().Format(time.RFC3339)}
	return c.api.Do(ctx, http.MethodPatch, "/api/v1/deletedusers/"+url.PathEscape(id), body, nil)
}

func (c *Client) DeletedUserSiteCreate(ctx context.Context, d DeletedUserSite) error {
	return c.api.Do(ctx, http.MethodPost, "/api/v1/deletedusersites", d, nil)
}

// DeleteUserData borra los datos del usuario. Retorna el affected-row count.
func (c *Client) DeleteUserData(ctx context.Context, userID string) (int64, error) {
	var out struct {
		Amount int64 `json:"amount"`
	}
	if err := c.api.Do(ctx, http.MethodDelete, "/api/v1/users/"+url.PathEscape(userID)+"/data", nil, &out); err != nil {
		return 0, err
	}
	return out.Amount, nil
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
