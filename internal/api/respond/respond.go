package respond

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// ErrorResponse is the JSON error envelope. ModelState lists per-field validation messages.
type ErrorResponse struct {
	Error      string              `json:"error"`
	Code       int                 `json:"code"`
	Message    string              `json:"message,omitempty"`
	ModelState map[string][]string `json:"modelState,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// WriteError writes a standardized error response
func WriteError(w http.ResponseWriter, statusCode int, message string) {
	WriteJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Code:    statusCode,
		Message: message,
	})
}

// WriteBadRequest writes a 400 Bad Request response
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message)
}

// WriteModelState writes a 400 response carrying field errors.
func WriteModelState(w http.ResponseWriter, modelState map[string][]string) {
	WriteJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:      http.StatusText(http.StatusBadRequest),
		Code:       http.StatusBadRequest,
		Message:    "The request is invalid.",
		ModelState: modelState,
	})
}

// WriteNotFound writes a 404 Not Found response
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, message)
}

// WriteInternalError writes a 500 Internal Server Error response
func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, message)
}
