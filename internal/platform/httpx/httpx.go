// Package httpx provides JSON request/response helpers for HTTP handlers.
package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/pmyapp/accord/internal/platform/errors"
)

// WriteJSON writes v as a JSON response with the provided status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ReadJSON decodes the request body into dst, rejecting unknown fields.
func ReadJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// errorBody is the wire shape for error responses.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// WriteError writes a structured error response from a domain error. Errors
// without a domain code map to an internal server error.
func WriteError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	message := "internal error"
	var metadata map[string]string
	var domainErr *apperrors.Error
	if errors.As(err, &domainErr) {
		message = domainErr.Message
		metadata = domainErr.Metadata
	}
	WriteJSON(w, code.HTTPStatus(), errorBody{
		Error: errorDetail{
			Code:     string(code),
			Message:  message,
			Metadata: metadata,
		},
	})
}

// WriteErrorCode writes a structured error response with an explicit code.
func WriteErrorCode(w http.ResponseWriter, code apperrors.Code, message string) {
	WriteJSON(w, code.HTTPStatus(), errorBody{
		Error: errorDetail{
			Code:    string(code),
			Message: message,
		},
	})
}
