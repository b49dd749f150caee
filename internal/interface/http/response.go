package http

import (
	"encoding/json"
	"net/http"
	"time"
)

// Envelope wraps every JSON body the server writes.
type Envelope struct {
	Success   bool          `json:"success"`
	Data      any           `json:"data,omitempty"`
	Error     *APIError     `json:"error,omitempty"`
	Meta      *ResponseMeta `json:"meta,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ResponseMeta. Timestamp and Version are filled in by writeJSON.
type ResponseMeta struct {
	Timestamp  time.Time `json:"timestamp"`
	Version    string    `json:"version,omitempty"`
	Source     string    `json:"source,omitempty"`
	TotalCount int       `json:"total_count,omitempty"`
}

// writeJSON sends data with a success flag derived from status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any, meta *ResponseMeta) {
	if meta == nil {
		meta = &ResponseMeta{}
	}
	meta.Timestamp = time.Now().UTC()
	meta.Version = "v1"
	send(w, status, Envelope{
		Success:   status >= 200 && status < 300,
		Data:      data,
		Meta:      meta,
		RequestID: requestID(r.Context()),
	})
}

// writeJSONError sends an error body; details is optional.
func writeJSONError(w http.ResponseWriter, r *http.Request, status int, code, message string, details ...string) {
	apiErr := &APIError{Code: code, Message: message}
	if len(details) > 0 {
		apiErr.Details = details[0]
	}
	send(w, status, Envelope{
		Error:     apiErr,
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC()},
		RequestID: requestID(r.Context()),
	})
}

func send(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
