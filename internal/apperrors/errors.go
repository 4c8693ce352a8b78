// Package apperrors defines the JSON error shapes shared by every handler.
//
// Two shapes exist on the wire: plain failures are {"detail": <string>}, and
// seat-limit failures carry a machine-readable payload with the tier, the cap,
// and the current occupancy so clients can render an upgrade prompt.
package apperrors

import (
	"encoding/json"
	"net/http"
)

// DetailResponse is the envelope for simple validation and auth failures.
type DetailResponse struct {
	Detail string `json:"detail"`
}

// SeatLimitResponse is the structured payload for seat-cap rejections.
// Exactly one of ActiveStaff/ActiveAdmins is set, depending on the role that
// hit the cap.
type SeatLimitResponse struct {
	Error        string `json:"error"`
	Message      string `json:"message"`
	Tier         string `json:"tier"`
	Limit        int    `json:"limit"`
	ActiveStaff  *int   `json:"active_staff,omitempty"`
	ActiveAdmins *int   `json:"active_admins,omitempty"`
}

// SeatLimitErrorCode is the machine code for seat-cap rejections.
const SeatLimitErrorCode = "SEAT_LIMIT_EXCEEDED"

func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		return
	}
}

// WriteDetail writes a plain {"detail": ...} response with the given status.
func WriteDetail(w http.ResponseWriter, r *http.Request, statusCode int, detail string) {
	_ = r
	writeJSON(w, statusCode, DetailResponse{Detail: detail})
}

// WriteSeatLimit writes the structured 403 seat-limit payload.
func WriteSeatLimit(w http.ResponseWriter, r *http.Request, resp SeatLimitResponse) {
	_ = r
	resp.Error = SeatLimitErrorCode
	writeJSON(w, http.StatusForbidden, resp)
}

// WriteSuccess writes a JSON body with the given status.
func WriteSuccess(w http.ResponseWriter, r *http.Request, statusCode int, data any) {
	_ = r
	writeJSON(w, statusCode, data)
}

// WriteBadRequest is a helper for 400 responses.
func WriteBadRequest(w http.ResponseWriter, r *http.Request, detail string) {
	WriteDetail(w, r, http.StatusBadRequest, detail)
}

// WriteUnauthorized is a helper for 401 responses.
func WriteUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	WriteDetail(w, r, http.StatusUnauthorized, detail)
}

// WriteForbidden is a helper for 403 responses.
func WriteForbidden(w http.ResponseWriter, r *http.Request, detail string) {
	WriteDetail(w, r, http.StatusForbidden, detail)
}

// WriteNotFound is a helper for 404 responses.
func WriteNotFound(w http.ResponseWriter, r *http.Request, detail string) {
	WriteDetail(w, r, http.StatusNotFound, detail)
}

// WriteConflict is a helper for 409 responses.
func WriteConflict(w http.ResponseWriter, r *http.Request, detail string) {
	WriteDetail(w, r, http.StatusConflict, detail)
}

// WriteGone is a helper for 410 responses.
func WriteGone(w http.ResponseWriter, r *http.Request, detail string) {
	WriteDetail(w, r, http.StatusGone, detail)
}

// WriteUnprocessable is a helper for 422 responses.
func WriteUnprocessable(w http.ResponseWriter, r *http.Request, detail string) {
	WriteDetail(w, r, http.StatusUnprocessableEntity, detail)
}

// WriteTooManyRequests is a helper for 429 responses.
func WriteTooManyRequests(w http.ResponseWriter, r *http.Request, detail string) {
	WriteDetail(w, r, http.StatusTooManyRequests, detail)
}

// WriteInternalError is a helper for 500 responses.
func WriteInternalError(w http.ResponseWriter, r *http.Request, detail string) {
	WriteDetail(w, r, http.StatusInternalServerError, detail)
}

// WriteServiceUnavailable is a helper for 503 responses.
func WriteServiceUnavailable(w http.ResponseWriter, r *http.Request, detail string) {
	WriteDetail(w, r, http.StatusServiceUnavailable, detail)
}
