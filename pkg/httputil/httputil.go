// Package httputil centralizes the small set of conventions every HTTP
// handler in this service follows: one JSON encoder, one error envelope.
// A *dErrors.Error is translated straight to {"error",
// "error_description"?} and the matching status, so handlers never
// hand-roll a status code.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "sessionhub/pkg/domainerrors"
)

// WriteJSON encodes v as the response body with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorBody is the wire shape of every error response.
type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// WriteError translates err into the JSON error envelope and matching HTTP
// status. Internal errors omit their description from the response body
// (it still belongs in the server log, written by the caller); every other
// code includes it since it is caller-facing by design.
func WriteError(w http.ResponseWriter, err error) {
	var de *dErrors.Error
	if !errors.As(err, &de) {
		de = dErrors.New(dErrors.CodeInternal, err.Error())
	}

	body := errorBody{Error: string(de.Code)}
	if de.Code != dErrors.CodeInternal {
		body.ErrorDescription = de.Description
	}
	WriteJSON(w, dErrors.ToHTTPStatus(de.Code), body)
}

// DecodeJSON decodes the request body into dst, returning a CodeBadRequest
// error on malformed JSON so callers can route it straight to WriteError.
func DecodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return dErrors.Wrap(dErrors.CodeBadRequest, "malformed request body", err)
	}
	return nil
}
