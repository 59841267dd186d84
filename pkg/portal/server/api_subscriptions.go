package server

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/open-apim/portal-core/internal/authtoken"
	"github.com/open-apim/portal-core/internal/subscriptions"
)

func (pa *PortalApplication) SubscriptionsPost(w http.ResponseWriter, r *http.Request) {
	principal, ok := pa.authenticate(w, r, authtoken.ScopeWriteSubscriptions)
	if !ok {
		return
	}
	var req subscriptions.CreateRequest
	if err := decodeJson(r, &req); err != nil {
		writeError(w, err)
		return
	}
	sub, err := pa.Subs.Create(principal, mux.Vars(r)["appId"], req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJson(w, http.StatusCreated, sub)
}

func (pa *PortalApplication) SubscriptionsGet(w http.ResponseWriter, r *http.Request) {
	principal, ok := pa.authenticate(w, r, authtoken.ScopeReadSubscriptions)
	if !ok {
		return
	}
	subs, err := pa.Subs.List(principal, mux.Vars(r)["appId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJson(w, http.StatusOK, subs)
}

func (pa *PortalApplication) SubscriptionGet(w http.ResponseWriter, r *http.Request) {
	principal, ok := pa.authenticate(w, r, authtoken.ScopeReadSubscriptions)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	sub, err := pa.Subs.Get(principal, vars["appId"], vars["apiId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJson(w, http.StatusOK, sub)
}

func (pa *PortalApplication) SubscriptionPatch(w http.ResponseWriter, r *http.Request) {
	principal, ok := pa.authenticate(w, r, authtoken.ScopeWriteSubscriptions)
	if !ok {
		return
	}
	var patch subscriptions.PatchRequest
	if err := decodeJson(r, &patch); err != nil {
		writeError(w, err)
		return
	}
	vars := mux.Vars(r)
	sub, err := pa.Subs.Patch(principal, vars["appId"], vars["apiId"], patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJson(w, http.StatusOK, sub)
}

func (pa *PortalApplication) SubscriptionDelete(w http.ResponseWriter, r *http.Request) {
	principal, ok := pa.authenticate(w, r, authtoken.ScopeWriteSubscriptions)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	if err := pa.Subs.Delete(principal, vars["appId"], vars["apiId"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SubscriptionByClientIdGet resolves an OAuth2 client id to its subscription
// and application. Admin only; used by gateways during token validation.
func (pa *PortalApplication) SubscriptionByClientIdGet(w http.ResponseWriter, r *http.Request) {
	principal, ok := pa.authenticate(w, r, authtoken.ScopeReadSubscriptions)
	if !ok {
		return
	}
	info, err := pa.Subs.GetByClientId(principal, mux.Vars(r)["clientId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJson(w, http.StatusOK, info)
}
