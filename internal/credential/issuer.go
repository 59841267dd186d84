// Package credential issues credentials for approved subscriptions. Issuing
// is pure key generation; the reverse clientId index is maintained by the
// storage provider so that revocation and subscription deletion stay in one
// critical section.
package credential

import (
	"github.com/segmentio/ksuid"

	"github.com/open-apim/portal-core/internal/apperr"
	"github.com/open-apim/portal-core/internal/model"
)

// Issue generates the credential for a subscription being approved (or
// created pre-approved). For apikey APIs a caller-supplied key overrides the
// generated one, which supports import/migration flows. For OAuth2 APIs the
// application must carry a redirect URI when the API's flows need one.
func Issue(api *model.API, app *model.Application, requestedKey string) (*model.Credential, error) {
	switch api.AuthMode {
	case model.AuthModeOAuth2:
		if api.RequiresRedirectUri() && len(app.RedirectUris) == 0 {
			return nil, apperr.Validation("Application does not have a redirectUri")
		}
		return &model.Credential{
			ClientId:     ksuid.New().String(),
			ClientSecret: ksuid.New().String(),
		}, nil
	case model.AuthModeApiKey:
		key := requestedKey
		if key == "" {
			key = ksuid.New().String()
		}
		return &model.Credential{ApiKey: key}, nil
	}
	return nil, apperr.Validation("API %s has an unsupported auth mode '%s'", api.Id, api.AuthMode)
}

// DefaultScopesMode computes the initial allowed-scopes mode of an OAuth2
// subscription. Trusted subscriptions are fully trusted; APIs that only
// enable the client credentials flow default to no scopes.
func DefaultScopesMode(api *model.API, trusted bool) model.ScopesMode {
	if api.AuthMode != model.AuthModeOAuth2 {
		return ""
	}
	if trusted {
		return model.ScopesModeAll
	}
	if api.Settings.EnableAuthorizationCode ||
		api.Settings.EnableImplicitGrant ||
		api.Settings.EnablePasswordGrant {
		return model.ScopesModeAll
	}
	return model.ScopesModeNone
}
