package api

import (
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/jmgilman/go/errors"
)

const maxBodyBytes = 1 << 20

// WriteJSON writes v with status.
func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// WriteError renders err as an errors.ErrorResponse.
func WriteError(w http.ResponseWriter, err error) {
	_ = WriteJSON(w, StatusFor(err), errors.ToJSON(err))
}

// StatusFor maps the code of err to an HTTP status.
func StatusFor(err error) int {
	switch errors.GetCode(err) {
	case errors.CodeNotFound:
		return http.StatusNotFound
	case errors.CodeInvalidInput, errors.CodeSchemaFailed:
		return http.StatusBadRequest
	case errors.CodeUnauthorized:
		return http.StatusUnauthorized
	case errors.CodeForbidden:
		return http.StatusForbidden
	case errors.CodeAlreadyExists, errors.CodeConflict:
		return http.StatusConflict
	case errors.CodeRateLimit:
		return http.StatusTooManyRequests
	case errors.CodeTimeout:
		return http.StatusGatewayTimeout
	case errors.CodeUnavailable:
		return http.StatusServiceUnavailable
	case errors.CodeNotImplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// DecodeJSON reads a JSON body into dest.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dest any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	data, err := io.ReadAll(body)
	if err != nil {
		return errors.Wrap(err, errors.CodeInvalidInput, "failed to read request body")
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return errors.Wrap(err, errors.CodeInvalidInput, "request body is not valid JSON")
	}
	return nil
}
