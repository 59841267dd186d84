package model

// AuthMode selects the credential type issued for a subscription.
type AuthMode string

const (
	AuthModeApiKey AuthMode = "apikey"
	AuthModeOAuth2 AuthMode = "oauth2"
)

func (a AuthMode) IsValid() bool {
	switch a {
	case AuthModeApiKey, AuthModeOAuth2:
		return true
	}
	return false
}

// ApiSettings lists the OAuth2 flows an API enables. Only meaningful when
// AuthMode is AuthModeOAuth2.
type ApiSettings struct {
	EnableClientCredentials bool `json:"enable_client_credentials,omitempty"`
	EnableAuthorizationCode bool `json:"enable_authorization_code,omitempty"`
	EnableImplicitGrant     bool `json:"enable_implicit_grant,omitempty"`
	EnablePasswordGrant     bool `json:"enable_password_grant,omitempty"`
}

// API describes a catalog entry an application can subscribe to. The catalog
// is resolved through an external lookup and never persisted by this core.
type API struct {
	Id               string      `json:"id"`
	Name             string      `json:"name,omitempty"`
	Deprecated       bool        `json:"deprecated,omitempty"`
	AuthMode         AuthMode    `json:"auth"`
	Plans            []string    `json:"plans"`
	RestrictedGroups []string    `json:"restrictedGroups,omitempty"`
	Settings         ApiSettings `json:"settings,omitempty"`
}

// RequiresRedirectUri reports whether a subscribing application must carry at
// least one redirect URI. This is the case for OAuth2 APIs whose only flows
// involve a browser redirect (implicit or authorization code).
func (a *API) RequiresRedirectUri() bool {
	if a.AuthMode != AuthModeOAuth2 {
		return false
	}
	return !a.Settings.EnableClientCredentials && !a.Settings.EnablePasswordGrant
}

// Plan is a named access tier of an API. An empty RestrictedGroups slice
// means the plan is unrestricted.
type Plan struct {
	Id               string   `json:"id"`
	Name             string   `json:"name,omitempty"`
	RequiresApproval bool     `json:"requiresApproval,omitempty"`
	RestrictedGroups []string `json:"restrictedGroups,omitempty"`
}

func (p *Plan) IsRestricted() bool {
	return len(p.RestrictedGroups) > 0
}
