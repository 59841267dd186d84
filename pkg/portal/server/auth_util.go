package server

import (
	"encoding/json"
	"net/http"

	"github.com/open-apim/portal-core/internal/apperr"
	"github.com/open-apim/portal-core/internal/model"
)

// authenticate validates the bearer token and the endpoint's scope. On
// failure the response is already written and ok is false.
func (pa *PortalApplication) authenticate(w http.ResponseWriter, r *http.Request, scope string) (model.Principal, bool) {
	principal, err := pa.Issuer.ValidateRequest(r, scope)
	if err != nil {
		writeError(w, err)
		return model.Principal{}, false
	}
	return principal, true
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError maps an error to its HTTP status and a JSON body carrying the
// error kind. Unknown errors read as internal without leaking their text.
func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	if pe, ok := apperr.As(err); ok {
		w.WriteHeader(pe.Status)
		_ = json.NewEncoder(w).Encode(errorBody{Code: pe.Code, Message: pe.Message})
		return
	}
	serverLog.Printf("Unhandled error: %s", err.Error())
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(errorBody{Code: apperr.CodeInternal, Message: "Internal server error"})
}

func writeJson(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// decodeJson reads a request body into v, converting malformed JSON into a
// validation error.
func decodeJson(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Validation("Invalid JSON body: %s", err.Error())
	}
	return nil
}
