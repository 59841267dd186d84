package server

import (
	"net/http"
	"regexp"

	"github.com/gorilla/mux"

	"github.com/open-apim/portal-core/internal/apperr"
	"github.com/open-apim/portal-core/internal/authtoken"
	"github.com/open-apim/portal-core/internal/model"
)

// Listener ids are used as path segments and log keys.
var listenerIdRegex = regexp.MustCompile(`^[a-zA-Z0-9\-_]{4,20}$`)

func (pa *PortalApplication) ListenersGet(w http.ResponseWriter, r *http.Request) {
	if _, ok := pa.authenticate(w, r, authtoken.ScopeWebhooks); !ok {
		return
	}
	writeJson(w, http.StatusOK, pa.Provider.GetListeners())
}

// ListenerPut registers or updates a webhook listener. Registration creates
// an empty event log; re-registration keeps the existing log.
func (pa *PortalApplication) ListenerPut(w http.ResponseWriter, r *http.Request) {
	if _, ok := pa.authenticate(w, r, authtoken.ScopeWebhooks); !ok {
		return
	}
	listenerId := mux.Vars(r)["listenerId"]
	if !listenerIdRegex.MatchString(listenerId) {
		writeError(w, apperr.Validation("Invalid listener ID, allowed chars are: a-z, A-Z, 0-9, - and _, length 4 to 20"))
		return
	}
	var listener model.WebhookListener
	if err := decodeJson(r, &listener); err != nil {
		writeError(w, err)
		return
	}
	if listener.Id != "" && listener.Id != listenerId {
		writeError(w, apperr.Validation("Listener ID in body (%s) does not match path (%s)", listener.Id, listenerId))
		return
	}
	if listener.Url == "" {
		writeError(w, apperr.Validation("Listener url is required"))
		return
	}
	listener.Id = listenerId
	if err := pa.Provider.UpsertListener(listener); err != nil {
		writeError(w, err)
		return
	}
	serverLog.Printf("Listener registered: %s -> %s", listener.Id, listener.Url)
	writeJson(w, http.StatusOK, listener)
}

func (pa *PortalApplication) ListenerGet(w http.ResponseWriter, r *http.Request) {
	if _, ok := pa.authenticate(w, r, authtoken.ScopeWebhooks); !ok {
		return
	}
	listener, err := pa.Provider.GetListener(mux.Vars(r)["listenerId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJson(w, http.StatusOK, listener)
}

func (pa *PortalApplication) ListenerDelete(w http.ResponseWriter, r *http.Request) {
	if _, ok := pa.authenticate(w, r, authtoken.ScopeWebhooks); !ok {
		return
	}
	listenerId := mux.Vars(r)["listenerId"]
	if err := pa.Provider.DeleteListener(listenerId); err != nil {
		writeError(w, err)
		return
	}
	serverLog.Printf("Listener deleted: %s", listenerId)
	w.WriteHeader(http.StatusNoContent)
}

// EventsGet returns the listener's queued events, oldest first. Events stay
// queued until acknowledged.
func (pa *PortalApplication) EventsGet(w http.ResponseWriter, r *http.Request) {
	if _, ok := pa.authenticate(w, r, authtoken.ScopeWebhooks); !ok {
		return
	}
	events, err := pa.Provider.GetEvents(mux.Vars(r)["listenerId"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJson(w, http.StatusOK, events)
}

// EventAck acknowledges one delivered event, removing it from the log.
func (pa *PortalApplication) EventAck(w http.ResponseWriter, r *http.Request) {
	if _, ok := pa.authenticate(w, r, authtoken.ScopeWebhooks); !ok {
		return
	}
	vars := mux.Vars(r)
	if err := pa.Provider.DeleteEvent(vars["listenerId"], vars["eventId"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// EventsFlush drops all queued events of a listener.
func (pa *PortalApplication) EventsFlush(w http.ResponseWriter, r *http.Request) {
	if _, ok := pa.authenticate(w, r, authtoken.ScopeWebhooks); !ok {
		return
	}
	if err := pa.Provider.FlushEvents(mux.Vars(r)["listenerId"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
