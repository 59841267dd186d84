package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/open-apim/portal-core/config"
	"github.com/open-apim/portal-core/internal/catalog"
	"github.com/open-apim/portal-core/internal/model"
	"github.com/open-apim/portal-core/internal/providers/dbProviders"
	portal "github.com/open-apim/portal-core/pkg/portal/server"
)

// stripQuotes removes matching surrounding quotes. Docker compose files
// often pass env values quoted.
func stripQuotes(s string) string {
	if len(s) < 2 {
		return s
	}
	first := s[0]
	last := s[len(s)-1]
	if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
		return s[1 : len(s)-1]
	}
	return s
}

func main() {
	cfg := config.GetEnvConfig()

	dbUrl := stripQuotes(cfg.MongoUrl)
	dbName := stripQuotes(cfg.DbName)
	port := stripQuotes(cfg.Port)
	baseUrl := stripQuotes(cfg.BaseUrl)
	catalogFile := stripQuotes(cfg.CatalogFile)

	provider, err := dbProviders.OpenProvider(dbUrl, dbName)
	if err != nil {
		log.Fatalln("Error opening database provider: " + err.Error())
	}

	var cat catalog.Catalog
	if catalogFile != "" {
		cat, err = catalog.LoadFile(catalogFile)
		if err != nil {
			log.Fatalln("Error loading catalog file: " + err.Error())
		}
	} else {
		log.Println("Warning: no catalog file configured (PORTAL_CATALOG_FILE), starting with an empty catalog")
		cat = catalog.NewStatic([]model.API{}, []model.Plan{})
	}

	addr := "0.0.0.0:" + port
	pa := portal.StartServer(addr, provider, cat, baseUrl)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-done
		pa.Shutdown()
	}()

	log.Printf("Portal server [%s] listening on %s", provider.Name(), addr)
	if err := pa.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalln(err.Error())
	}
}
