package server

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/open-apim/portal-core/internal/apperr"
	"github.com/open-apim/portal-core/internal/authtoken"
	"github.com/open-apim/portal-core/internal/model"
)

// Grants are personal: a user manages their own, admins may manage anyone's.
func grantAccess(p model.Principal, userId string) error {
	if p.Admin || p.UserId == userId {
		return nil
	}
	return apperr.NotAllowed("Not allowed. Grants belong to their user.")
}

func (pa *PortalApplication) GrantsGet(w http.ResponseWriter, r *http.Request) {
	principal, ok := pa.authenticate(w, r, authtoken.ScopeReadGrants)
	if !ok {
		return
	}
	userId := mux.Vars(r)["userId"]
	if err := grantAccess(principal, userId); err != nil {
		writeError(w, err)
		return
	}
	grants, err := pa.Provider.GetGrantsByUser(userId)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJson(w, http.StatusOK, grants)
}

func (pa *PortalApplication) GrantGet(w http.ResponseWriter, r *http.Request) {
	principal, ok := pa.authenticate(w, r, authtoken.ScopeReadGrants)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	if err := grantAccess(principal, vars["userId"]); err != nil {
		writeError(w, err)
		return
	}
	grant, err := pa.Provider.GetGrant(vars["userId"], vars["appId"], vars["apiId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJson(w, http.StatusOK, grant)
}

// GrantPut records the scopes a user grants an application for an API. The
// path is authoritative for the key fields.
func (pa *PortalApplication) GrantPut(w http.ResponseWriter, r *http.Request) {
	principal, ok := pa.authenticate(w, r, authtoken.ScopeWriteGrants)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	if err := grantAccess(principal, vars["userId"]); err != nil {
		writeError(w, err)
		return
	}
	if _, err := pa.Provider.GetApplication(vars["appId"]); err != nil {
		writeError(w, err)
		return
	}
	if _, err := pa.Catalog.GetApi(vars["apiId"]); err != nil {
		writeError(w, err)
		return
	}
	var grant model.Grant
	if err := decodeJson(r, &grant); err != nil {
		writeError(w, err)
		return
	}
	grant.UserId = vars["userId"]
	grant.ApplicationId = vars["appId"]
	grant.ApiId = vars["apiId"]
	grant.ModifiedAt = time.Now().UTC()
	for i := range grant.Scopes {
		if grant.Scopes[i].Scope == "" {
			writeError(w, apperr.Validation("Grant scopes must not be empty"))
			return
		}
		if grant.Scopes[i].GrantedDate.IsZero() {
			grant.Scopes[i].GrantedDate = grant.ModifiedAt
		}
	}
	if err := pa.Provider.UpsertGrant(&grant); err != nil {
		writeError(w, err)
		return
	}
	writeJson(w, http.StatusOK, grant)
}

func (pa *PortalApplication) GrantDelete(w http.ResponseWriter, r *http.Request) {
	principal, ok := pa.authenticate(w, r, authtoken.ScopeWriteGrants)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	if err := grantAccess(principal, vars["userId"]); err != nil {
		writeError(w, err)
		return
	}
	if err := pa.Provider.DeleteGrant(vars["userId"], vars["appId"], vars["apiId"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GrantsDeleteAll wipes every grant of a user, e.g. on user deletion.
func (pa *PortalApplication) GrantsDeleteAll(w http.ResponseWriter, r *http.Request) {
	principal, ok := pa.authenticate(w, r, authtoken.ScopeWriteGrants)
	if !ok {
		return
	}
	userId := mux.Vars(r)["userId"]
	if err := grantAccess(principal, userId); err != nil {
		writeError(w, err)
		return
	}
	if err := pa.Provider.DeleteGrantsByUser(userId); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
