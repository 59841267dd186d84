package server

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"os"

	"github.com/open-apim/portal-core/internal/applications"
	"github.com/open-apim/portal-core/internal/authtoken"
	"github.com/open-apim/portal-core/internal/catalog"
	"github.com/open-apim/portal-core/internal/eventbus"
	"github.com/open-apim/portal-core/internal/providers/dbProviders"
	"github.com/open-apim/portal-core/internal/subscriptions"
)

var serverLog = log.New(os.Stdout, "SERVER:  ", log.Ldate|log.Ltime)

// PortalApplication wires the portal core together: storage provider,
// catalog, event bus, the application and subscription services and the HTTP
// server on top of them.
type PortalApplication struct {
	Provider dbProviders.Provider
	Catalog  catalog.Catalog
	Bus      *eventbus.Bus
	Apps     *applications.Service
	Subs     *subscriptions.Service
	Issuer   *authtoken.AuthIssuer
	Server   *http.Server
	HostName string
	BaseUrl  *url.URL
	Stats    *PrometheusHandler
}

func (pa *PortalApplication) Name() string {
	return "portalServer"
}

func (pa *PortalApplication) HealthCheck() bool {
	if err := pa.Provider.Check(); err != nil {
		serverLog.Println("Provider ping failed: " + err.Error())
		return false
	}
	return true
}

// StartServer assembles the portal application and its HTTP server on addr.
// The caller runs Server.ListenAndServe (or Serve) itself so tests can bind
// their own listeners.
func StartServer(addr string, provider dbProviders.Provider, cat catalog.Catalog, baseUrlString string) *PortalApplication {
	bus := eventbus.NewBus(provider)
	subSvc := subscriptions.NewService(provider, cat, bus)
	appSvc := applications.NewService(provider, subSvc, bus)

	pa := &PortalApplication{
		Provider: provider,
		Catalog:  cat,
		Bus:      bus,
		Apps:     appSvc,
		Subs:     subSvc,
		Issuer:   provider.GetAuthIssuer(),
	}

	name := "http://" + addr
	if baseUrlString != "" {
		baseUrl, err := url.Parse(baseUrlString)
		if err != nil {
			serverLog.Printf("Invalid base URL [%s]: %s", baseUrlString, err.Error())
		} else {
			pa.BaseUrl = baseUrl
			name = baseUrl.String()
		}
	}
	pa.HostName = name
	serverLog.Println("Server hostname: \t[" + name + "]")

	router := NewRouter(pa)
	pa.Server = &http.Server{
		Addr:    addr,
		Handler: router,
	}

	pa.InitializePrometheus()

	return pa
}

func (pa *PortalApplication) Shutdown() {
	serverLog.Printf("[%s] Shutdown initiated...", pa.Name())
	_ = pa.Server.Shutdown(context.Background())
	_ = pa.Provider.Close()
}
