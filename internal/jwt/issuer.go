// Package jwt emite los ID tokens del flujo OIDC.
//
// La criptografía pesada queda en la librería; acá sólo armamos claims
// estándar y firmamos con la key configurada.
package jwt

import (
	"errors"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
)

var ErrNoSigningKey = errors.New("jwt: signing key not configured")

type Issuer struct {
	issuer string
	key    []byte
	ttl    time.Duration
}

func NewIssuer(issuer, key string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Issuer{issuer: issuer, key: []byte(key), ttl: ttl}
}

// IDTokenClaims son los claims mínimos del ID token.
type IDTokenClaims struct {
	Nonce  string `json:"nonce,omitempty"`
	SiteID int64  `json:"site_id,omitempty"`
	gojwt.RegisteredClaims
}

// IssueIDToken firma un ID token para (userID, clientID).
func (i *Issuer) IssueIDToken(userID, clientID, nonce string, siteID int64) (string, error) {
	if len(i.key) == 0 {
		return "", ErrNoSigningKey
	}
	now := time.Now().UTC()
	claims := IDTokenClaims{
		Nonce:  nonce,
		SiteID: siteID,
		RegisteredClaims: gojwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   userID,
			Audience:  gojwt.ClaimStrings{clientID},
			IssuedAt:  gojwt.NewNumericDate(now),
			ExpiresAt: gojwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	tok := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims)
	return tok.SignedString(i.key)
}

// Parse valida firma y expiración, y retorna los claims.
func (i *Issuer) Parse(raw string) (*IDTokenClaims, error) {
	var claims IDTokenClaims
	_, err := gojwt.ParseWithClaims(raw, &claims, func(t *gojwt.Token) (any, error) {
		if _, ok := t.Method.(*gojwt.SigningMethodHMAC); !ok {
			return nil, errors.New("jwt: unexpected signing method")
		}
		return i.key, nil
	}, gojwt.WithIssuer(i.issuer))
	if err != nil {
		return nil, err
	}
	return &claims, nil
}
