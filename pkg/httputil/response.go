// Package httputil provides HTTP handler utilities for consistent error handling,
// JSON encoding/decoding, and request parsing.
package httputil

import (
	"encoding/json"
	"net/http"
)

// Envelope is a JSON response body. Every body carries a success flag.
type Envelope map[string]interface{}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a 200 envelope with success=true and the given fields
func WriteSuccess(w http.ResponseWriter, fields Envelope) error {
	body := Envelope{"success": true}
	for k, v := range fields {
		body[k] = v
	}
	return WriteJSON(w, http.StatusOK, body)
}

// WriteFailure writes an envelope with success=false and an error message
func WriteFailure(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, Envelope{
		"success": false,
		"error":   message,
	})
}

// WriteBadRequest writes a bad request error (400)
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteFailure(w, http.StatusBadRequest, message)
}

// WriteNotFound writes a not found error (404)
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteFailure(w, http.StatusNotFound, message)
}

// WriteInternalError writes a generic internal error (500). The message is
// shown to clients, so keep storage details out of it.
func WriteInternalError(w http.ResponseWriter, message string) {
	WriteFailure(w, http.StatusInternalServerError, message)
}

// WriteAttachment writes data as a file download
func WriteAttachment(w http.ResponseWriter, contentType, filename string, data []byte) error {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	w.WriteHeader(http.StatusOK)
	_, err := w.Write(data)
	return err
}
