package authtoken

import (
	"crypto/rsa"
	"errors"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
	"github.com/segmentio/ksuid"

	"github.com/open-apim/portal-core/internal/apperr"
	"github.com/open-apim/portal-core/internal/model"
)

var authLog = log.New(os.Stdout, "AUTH:   ", log.Ldate|log.Ltime)

// Scopes accepted by the portal API. A token lists the scopes it was granted
// in the "roles" claim; each endpoint declares the one scope it requires.
const (
	ScopeReadApplications   = "read_applications"
	ScopeWriteApplications  = "write_applications"
	ScopeReadSubscriptions  = "read_subscriptions"
	ScopeWriteSubscriptions = "write_subscriptions"
	ScopeReadApprovals      = "read_approvals"
	ScopeWebhooks           = "webhooks"
	ScopeReadGrants         = "read_grants"
	ScopeWriteGrants        = "write_grants"
)

// PortalAuthToken is the claim set of a portal bearer token. The subject is
// the user id; groups and scopes drive the authorization guard.
type PortalAuthToken struct {
	Email  string   `json:"email,omitempty"`
	Groups []string `json:"groups,omitempty"`
	Scopes []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Principal derives the request principal from a validated token.
func (t *PortalAuthToken) Principal() model.Principal {
	p := model.Principal{
		UserId: t.Subject,
		Email:  t.Email,
		Groups: t.Groups,
		Scopes: t.Scopes,
	}
	p.Admin = p.InGroup(model.AdminGroup)
	return p
}

// AuthIssuer signs and validates portal bearer tokens. The key pair is owned
// by the storage provider.
type AuthIssuer struct {
	TokenIssuer string
	PrivateKey  *rsa.PrivateKey
	PublicKey   *keyfunc.JWKS
}

// IssueUserToken issues a bearer token for the given user with the listed
// groups and scopes.
func (a *AuthIssuer) IssueUserToken(userId string, email string, groups []string, scopes []string) (string, error) {
	exp := time.Now().AddDate(0, 0, 90)

	claims := PortalAuthToken{
		Email:  email,
		Groups: groups,
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userId,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(exp),
			Audience:  []string{a.TokenIssuer},
			Issuer:    a.TokenIssuer,
			ID:        ksuid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["typ"] = "jwt"
	token.Header["kid"] = a.TokenIssuer
	return token.SignedString(a.PrivateKey)
}

// ParseAuthToken parses and validates a bearer token. A *PortalAuthToken is
// only returned if the token validated.
func (a *AuthIssuer) ParseAuthToken(tokenString string) (*PortalAuthToken, error) {
	if a.PublicKey == nil {
		return nil, errors.New("no public key available to validate authorization token")
	}

	// In case of cut/paste error, trim extra spaces
	tokenString = strings.TrimSpace(tokenString)

	valid := true
	token, err := jwt.ParseWithClaims(tokenString, &PortalAuthToken{}, a.PublicKey.Keyfunc)
	if err != nil {
		authLog.Printf("Error validating token: %s", err.Error())
		valid = false
	}
	if token == nil || token.Header["typ"] != "jwt" {
		return nil, errors.New("token type is not an authorization token (`jwt`)")
	}

	if claims, ok := token.Claims.(*PortalAuthToken); ok && valid {
		return claims, nil
	}
	return nil, err
}

// ValidateRequest resolves the request principal and checks the declared
// scope. A missing or invalid token and a missing scope both yield the
// FORBIDDEN_SCOPE kind so that entitlement failures stay distinguishable.
func (a *AuthIssuer) ValidateRequest(r *http.Request, scope string) (model.Principal, error) {
	authorization := r.Header.Get("Authorization")
	if authorization == "" {
		return model.Principal{}, apperr.MissingScope(scope)
	}
	parts := strings.Split(authorization, " ")
	if len(parts) < 2 || parts[0] != "Bearer" {
		authLog.Printf("Received invalid authorization type: [%s]", parts[0])
		return model.Principal{}, apperr.MissingScope(scope)
	}

	claims, err := a.ParseAuthToken(parts[1])
	if err != nil {
		authLog.Printf("Authorization invalid: [%s]", err.Error())
		return model.Principal{}, apperr.MissingScope(scope)
	}

	principal := claims.Principal()
	if !principal.HasScope(scope) {
		return model.Principal{}, apperr.MissingScope(scope)
	}
	return principal, nil
}
