package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter declares the portal API routes.
func NewRouter(pa *PortalApplication) *mux.Router {
	router := mux.NewRouter().StrictSlash(true)
	router.Use(PrometheusHttpMiddleware)

	// Unauthenticated surface
	router.HandleFunc("/health", pa.GetHealth).Methods("GET")
	router.HandleFunc("/jwks.json", pa.GetJwks).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	router.HandleFunc("/apis", pa.GetApis).Methods("GET")
	router.HandleFunc("/plans", pa.GetPlans).Methods("GET")

	// Applications and owners
	router.HandleFunc("/applications", pa.ApplicationsPost).Methods("POST")
	router.HandleFunc("/applications", pa.ApplicationsGet).Methods("GET")
	router.HandleFunc("/applications/{appId}", pa.ApplicationGet).Methods("GET")
	router.HandleFunc("/applications/{appId}", pa.ApplicationPatch).Methods("PATCH")
	router.HandleFunc("/applications/{appId}", pa.ApplicationDelete).Methods("DELETE")
	router.HandleFunc("/applications/{appId}/owners", pa.OwnerPost).Methods("POST")
	router.HandleFunc("/applications/{appId}/owners/{userId}", pa.OwnerDelete).Methods("DELETE")

	// Subscription lifecycle
	router.HandleFunc("/applications/{appId}/subscriptions", pa.SubscriptionsPost).Methods("POST")
	router.HandleFunc("/applications/{appId}/subscriptions", pa.SubscriptionsGet).Methods("GET")
	router.HandleFunc("/applications/{appId}/subscriptions/{apiId}", pa.SubscriptionGet).Methods("GET")
	router.HandleFunc("/applications/{appId}/subscriptions/{apiId}", pa.SubscriptionPatch).Methods("PATCH")
	router.HandleFunc("/applications/{appId}/subscriptions/{apiId}", pa.SubscriptionDelete).Methods("DELETE")

	// Approval queue (computed, read-only)
	router.HandleFunc("/approvals", pa.ApprovalsGet).Methods("GET")
	router.HandleFunc("/approvals/{approvalId}", pa.ApprovalGet).Methods("GET")

	// Reverse credential lookup for gateways
	router.HandleFunc("/subscriptions/{clientId}", pa.SubscriptionByClientIdGet).Methods("GET")

	// Webhook listeners and their event logs
	router.HandleFunc("/webhooks/listeners", pa.ListenersGet).Methods("GET")
	router.HandleFunc("/webhooks/listeners/{listenerId}", pa.ListenerPut).Methods("PUT")
	router.HandleFunc("/webhooks/listeners/{listenerId}", pa.ListenerGet).Methods("GET")
	router.HandleFunc("/webhooks/listeners/{listenerId}", pa.ListenerDelete).Methods("DELETE")
	router.HandleFunc("/webhooks/events/{listenerId}", pa.EventsGet).Methods("GET")
	router.HandleFunc("/webhooks/events/{listenerId}", pa.EventsFlush).Methods("DELETE")
	router.HandleFunc("/webhooks/events/{listenerId}/{eventId}", pa.EventAck).Methods("DELETE")

	// Scope grants
	router.HandleFunc("/grants/{userId}", pa.GrantsGet).Methods("GET")
	router.HandleFunc("/grants/{userId}", pa.GrantsDeleteAll).Methods("DELETE")
	router.HandleFunc("/grants/{userId}/applications/{appId}/apis/{apiId}", pa.GrantGet).Methods("GET")
	router.HandleFunc("/grants/{userId}/applications/{appId}/apis/{apiId}", pa.GrantPut).Methods("PUT")
	router.HandleFunc("/grants/{userId}/applications/{appId}/apis/{apiId}", pa.GrantDelete).Methods("DELETE")

	return router
}

func (pa *PortalApplication) GetHealth(w http.ResponseWriter, _ *http.Request) {
	if !pa.HealthCheck() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "UP", "db": pa.Provider.Name()})
}

func (pa *PortalApplication) GetJwks(w http.ResponseWriter, _ *http.Request) {
	jwks := pa.Provider.GetPublicJWKS()
	if jwks == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	_, _ = w.Write(*jwks)
}

func (pa *PortalApplication) GetApis(w http.ResponseWriter, _ *http.Request) {
	writeJson(w, http.StatusOK, pa.Catalog.Apis())
}

func (pa *PortalApplication) GetPlans(w http.ResponseWriter, _ *http.Request) {
	writeJson(w, http.StatusOK, pa.Catalog.Plans())
}
