package server

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/open-apim/portal-core/internal/authtoken"
)

func (pa *PortalApplication) ApprovalsGet(w http.ResponseWriter, r *http.Request) {
	principal, ok := pa.authenticate(w, r, authtoken.ScopeReadApprovals)
	if !ok {
		return
	}
	approvals, err := pa.Subs.ListApprovals(principal)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJson(w, http.StatusOK, approvals)
}

func (pa *PortalApplication) ApprovalGet(w http.ResponseWriter, r *http.Request) {
	principal, ok := pa.authenticate(w, r, authtoken.ScopeReadApprovals)
	if !ok {
		return
	}
	approval, err := pa.Subs.GetApproval(principal, mux.Vars(r)["approvalId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJson(w, http.StatusOK, approval)
}
