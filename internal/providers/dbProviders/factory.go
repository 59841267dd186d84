package dbProviders

import (
	"strings"

	"github.com/open-apim/portal-core/internal/providers/dbProviders/mock_provider"
	"github.com/open-apim/portal-core/internal/providers/dbProviders/mongo_provider"
)

// OpenProvider detects the database URL and returns the appropriate provider
// implementation. If the URL starts with "mockdb:", it returns the in-memory
// mock provider. Otherwise, it returns a MongoDB provider.
func OpenProvider(dbUrl string, dbName string) (Provider, error) {
	if strings.HasPrefix(dbUrl, "mockdb:") {
		return mock_provider.Open(dbUrl, dbName)
	}
	return mongo_provider.Open(dbUrl, dbName)
}
