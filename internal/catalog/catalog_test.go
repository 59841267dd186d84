package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/open-apim/portal-core/internal/apperr"
	"github.com/open-apim/portal-core/internal/model"
)

var testDoc = `{
  "apis": [
    {"id": "orders", "name": "Orders API", "auth": "oauth2", "plans": ["basic", "premium"],
     "settings": {"enable_authorization_code": true}},
    {"id": "weather", "name": "Weather API", "auth": "apikey", "plans": ["basic"]}
  ],
  "plans": [
    {"id": "basic", "name": "Basic"},
    {"id": "premium", "name": "Premium", "requiresApproval": true}
  ]
}`

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	assert.NoError(t, os.WriteFile(path, []byte(testDoc), 0644))

	cat, err := LoadFile(path)
	assert.NoError(t, err)

	api, err := cat.GetApi("orders")
	assert.NoError(t, err)
	assert.Equal(t, model.AuthModeOAuth2, api.AuthMode)
	assert.True(t, api.Settings.EnableAuthorizationCode)
	assert.Equal(t, []string{"basic", "premium"}, api.Plans)

	plan, err := cat.GetPlan("premium")
	assert.NoError(t, err)
	assert.True(t, plan.RequiresApproval)

	assert.Len(t, cat.Apis(), 2)
	assert.Len(t, cat.Plans(), 2)
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.json")
	assert.NoError(t, os.WriteFile(path, []byte("not json"), 0644))
	_, err = LoadFile(path)
	assert.Error(t, err)
}

func TestUnknownIdsAreNotFound(t *testing.T) {
	cat := NewStatic(nil, nil)
	_, err := cat.GetApi("ghost")
	assert.True(t, apperr.IsKind(err, apperr.CodeNotFound))
	_, err = cat.GetPlan("ghost")
	assert.True(t, apperr.IsKind(err, apperr.CodeNotFound))
}

func TestStaticPreservesOrder(t *testing.T) {
	cat := NewStatic(
		[]model.API{{Id: "b"}, {Id: "a"}, {Id: "c"}},
		[]model.Plan{{Id: "z"}, {Id: "y"}},
	)
	apis := cat.Apis()
	assert.Equal(t, "b", apis[0].Id)
	assert.Equal(t, "a", apis[1].Id)
	assert.Equal(t, "c", apis[2].Id)
	assert.Len(t, cat.Plans(), 2)
}
