// Package respond writes the JSON envelope shared by every endpoint: {"success": bool, "message": string, ...}.
package respond

import (
	"encoding/json"
	"net/http"
)

// Fields are extra top-level keys merged into the envelope.
type Fields map[string]any

// JSON writes status with the envelope. Keys in fields override success and message.
func JSON(w http.ResponseWriter, status int, message string, fields Fields) {
	body := make(map[string]any, len(fields)+2)
	body["success"] = status < 400
	if message != "" {
		body["message"] = message
	}
	for k, v := range fields {
		body[k] = v
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// OK writes a 200 envelope.
func OK(w http.ResponseWriter, message string, fields Fields) {
	JSON(w, http.StatusOK, message, fields)
}

// Error writes a failure envelope with the message under both "message" and "error".
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, message, Fields{"error": message})
}

// Validation writes a 422 with per-field messages under "errors".
func Validation(w http.ResponseWriter, errs map[string]string) {
	JSON(w, http.StatusUnprocessableEntity, "validation failed", Fields{"errors": errs})
}
