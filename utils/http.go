package utils

import (
	"encoding/json"
	"net/http"

	"github.com/upb/coffee-shop/auth"
)

// Default messages for the error envelope, keyed by status.
var defaultMessages = map[int]string{
	http.StatusBadRequest:          "The server could not understand the request due to invalid syntax.",
	http.StatusUnauthorized:        "Client must authenticate itself to get the requested resource.",
	http.StatusForbidden:           "Client does not have access rights to the requested resource",
	http.StatusNotFound:            "The server can not find the requested resource",
	http.StatusMethodNotAllowed:    "This method is not allowed for the requested URL",
	http.StatusConflict:            "The request conflicts with the current state of the resource",
	http.StatusUnprocessableEntity: "The request was unable to be followed due to semantic errors",
	http.StatusInternalServerError: "The server has encountered an internal error",
	http.StatusServiceUnavailable:  "The service is temporarily unavailable",
}

// ErrorResponse is the envelope for every non-authorization failure
type ErrorResponse struct {
	Success bool                   `json:"success"`
	Error   int                    `json:"error"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// AuthErrorResponse is the body rendered for an authorization failure
type AuthErrorResponse struct {
	Success     bool   `json:"success"`
	Code        string `json:"code"`
	Description string `json:"description"`
}

// Envelope is a success body; WriteOK adds "success": true to it.
type Envelope map[string]interface{}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return nil
	}

	return json.NewEncoder(w).Encode(data)
}

// WriteOK writes a 200 OK response carrying fields and "success": true
func WriteOK(w http.ResponseWriter, fields Envelope) error {
	body := make(Envelope, len(fields)+1)
	for k, v := range fields {
		body[k] = v
	}
	body["success"] = true
	return WriteJSON(w, http.StatusOK, body)
}

// WriteBadRequest writes a 400 Bad Request response with error details
func WriteBadRequest(w http.ResponseWriter, message string, details map[string]interface{}) error {
	return WriteError(w, http.StatusBadRequest, message, details)
}

// WriteNotFound writes a 404 Not Found response
func WriteNotFound(w http.ResponseWriter, message string) error {
	return WriteError(w, http.StatusNotFound, message, nil)
}

// WriteMethodNotAllowed writes a 405 Method Not Allowed response
func WriteMethodNotAllowed(w http.ResponseWriter) error {
	return WriteError(w, http.StatusMethodNotAllowed, "", nil)
}

// WriteConflict writes a 409 Conflict response
func WriteConflict(w http.ResponseWriter, message string, details map[string]interface{}) error {
	return WriteError(w, http.StatusConflict, message, details)
}

// WriteUnprocessableEntity writes a 422 Unprocessable Entity response
func WriteUnprocessableEntity(w http.ResponseWriter, message string) error {
	return WriteError(w, http.StatusUnprocessableEntity, message, nil)
}

// WriteInternalServerError writes a 500 Internal Server Error response
func WriteInternalServerError(w http.ResponseWriter, message string) error {
	return WriteError(w, http.StatusInternalServerError, message, nil)
}

// WriteError writes the error envelope for status. An empty message falls back
// to the default wording for that status.
func WriteError(w http.ResponseWriter, status int, message string, details map[string]interface{}) error {
	if message == "" {
		message = defaultMessages[status]
	}
	if message == "" {
		message = http.StatusText(status)
	}

	return WriteJSON(w, status, ErrorResponse{
		Success: false,
		Error:   status,
		Message: message,
		Details: details,
	})
}

// WriteAuthError renders an authorization failure with its own status code
func WriteAuthError(w http.ResponseWriter, err *auth.AuthError) error {
	return WriteJSON(w, err.StatusCode, AuthErrorResponse{
		Success:     false,
		Code:        err.Code,
		Description: err.Description,
	})
}
