package server

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/open-apim/portal-core/internal/applications"
	"github.com/open-apim/portal-core/internal/authtoken"
	"github.com/open-apim/portal-core/internal/model"
)

func (pa *PortalApplication) ApplicationsPost(w http.ResponseWriter, r *http.Request) {
	principal, ok := pa.authenticate(w, r, authtoken.ScopeWriteApplications)
	if !ok {
		return
	}
	var req applications.CreateRequest
	if err := decodeJson(r, &req); err != nil {
		writeError(w, err)
		return
	}
	app, err := pa.Apps.Create(principal, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJson(w, http.StatusCreated, app)
}

func (pa *PortalApplication) ApplicationsGet(w http.ResponseWriter, r *http.Request) {
	principal, ok := pa.authenticate(w, r, authtoken.ScopeReadApplications)
	if !ok {
		return
	}
	apps, err := pa.Apps.List(principal)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJson(w, http.StatusOK, apps)
}

func (pa *PortalApplication) ApplicationGet(w http.ResponseWriter, r *http.Request) {
	principal, ok := pa.authenticate(w, r, authtoken.ScopeReadApplications)
	if !ok {
		return
	}
	app, err := pa.Apps.Get(principal, mux.Vars(r)["appId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJson(w, http.StatusOK, app)
}

func (pa *PortalApplication) ApplicationPatch(w http.ResponseWriter, r *http.Request) {
	principal, ok := pa.authenticate(w, r, authtoken.ScopeWriteApplications)
	if !ok {
		return
	}
	var req applications.UpdateRequest
	if err := decodeJson(r, &req); err != nil {
		writeError(w, err)
		return
	}
	app, err := pa.Apps.Update(principal, mux.Vars(r)["appId"], req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJson(w, http.StatusOK, app)
}

func (pa *PortalApplication) ApplicationDelete(w http.ResponseWriter, r *http.Request) {
	principal, ok := pa.authenticate(w, r, authtoken.ScopeWriteApplications)
	if !ok {
		return
	}
	if err := pa.Apps.Delete(principal, mux.Vars(r)["appId"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (pa *PortalApplication) OwnerPost(w http.ResponseWriter, r *http.Request) {
	principal, ok := pa.authenticate(w, r, authtoken.ScopeWriteApplications)
	if !ok {
		return
	}
	var owner model.Owner
	if err := decodeJson(r, &owner); err != nil {
		writeError(w, err)
		return
	}
	app, err := pa.Apps.AddOwner(principal, mux.Vars(r)["appId"], owner)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJson(w, http.StatusCreated, app)
}

func (pa *PortalApplication) OwnerDelete(w http.ResponseWriter, r *http.Request) {
	principal, ok := pa.authenticate(w, r, authtoken.ScopeWriteApplications)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	app, err := pa.Apps.RemoveOwner(principal, vars["appId"], vars["userId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJson(w, http.StatusOK, app)
}
