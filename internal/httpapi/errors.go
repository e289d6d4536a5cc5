package httpapi

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"taskrouter/internal/apperr"
	"taskrouter/internal/store"
)

// errorBody is the structured payload spec §7 requires for every failed
// request: {error: {code, message, details?}}.
type errorBody struct {
	Error struct {
		Code    apperr.Code `json:"code"`
		Message string      `json:"message"`
		Details string      `json:"details,omitempty"`
	} `json:"error"`
}

// writeJSON serializes payload as JSON and writes it with the given status.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

// writeError maps err to one of the five external codes (spec §7) and
// writes the corresponding status + structured body. A nil err is a
// programmer error; callers only call this once err != nil.
func writeError(w http.ResponseWriter, err error) {
	code := apperr.CodeFor(err)
	if code == apperr.CodeInternal && store.IsStoreError(err) {
		code = apperr.CodeDatabase
	}
	status := statusFor(code)
	if errors.Is(err, apperr.ErrUnavailable) {
		// spec §7 defines no UNAVAILABLE wire code — the JSON code stays
		// INTERNAL_ERROR but the HTTP status reflects the transient nature.
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, errorResponse(code, err))
}

func errorResponse(code apperr.Code, err error) errorBody {
	var body errorBody
	body.Error.Code = code
	body.Error.Message = err.Error()
	return body
}

func statusFor(code apperr.Code) int {
	switch code {
	case apperr.CodeValidation:
		return http.StatusBadRequest
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeConflict:
		return http.StatusConflict
	case apperr.CodeDatabase, apperr.CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON decodes r's body into v, returning a validation error on
// malformed JSON so the caller can writeError it directly.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.ValidationError("malformed request body: " + err.Error())
	}
	return nil
}

// clientIP extracts the client IP from common proxy headers or the remote
// address, for access logging.
func clientIP(r *http.Request) string {
	if realIP := r.Header.Get("X-Forwarded-For"); realIP != "" {
		parts := strings.Split(realIP, ",")
		return strings.TrimSpace(parts[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return strings.Trim(r.RemoteAddr, "[]")
}

func isNotFound(err error) bool { return errors.Is(err, apperr.ErrNotFound) }
