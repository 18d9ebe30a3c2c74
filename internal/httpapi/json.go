package httpapi

import (
	"encoding/json"
	"net/http"

	"logsvc/pkg/apperror"
)

// decodeJSON reads and decodes the request body into v. Malformed JSON
// surfaces as a shape error (422); unknown fields are ignored.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return apperror.NewShape("request body is not valid JSON").WithField("body")
	}
	return nil
}

// writeJSON writes v as the response body with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError delegates to apperror's JSON error renderer.
func writeError(w http.ResponseWriter, err error) {
	apperror.WriteJSON(w, err)
}
