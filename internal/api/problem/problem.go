package problem

import (
	"encoding/json"
	"net/http"
)

const (
	contentType = "application/problem+json"
	baseTypeURL = "https://errors.interbank-transfers.dev/"
)

// Details represents RFC 7807 Problem Details.
type Details struct {
	Type      string `json:"type"`
	Title     string `json:"title"`
	Status    int    `json:"status"`
	Detail    string `json:"detail"`
	Instance  string `json:"instance"`
	RequestID string `json:"request_id"`
	// Code is the transfer error code partner banks key their handling on.
	Code string `json:"code,omitempty"`
}

func Type(slug string) string {
	return baseTypeURL + slug
}

// Transfer returns the type URI for a transfer rejection slug.
func Transfer(slug string) string {
	return Type("transfer/" + slug)
}

// Write sends RFC 7807-compliant errors.
func Write(w http.ResponseWriter, r *http.Request, status int, problemType, title, detail string) {
	write(w, r, Details{Type: problemType, Title: title, Status: status, Detail: detail})
}

// WriteTransfer sends a transfer rejection carrying its error code.
func WriteTransfer(w http.ResponseWriter, r *http.Request, status int, slug, code, detail string) {
	write(w, r, Details{Type: Transfer(slug), Status: status, Detail: detail, Code: code})
}

func write(w http.ResponseWriter, r *http.Request, d Details) {
	status := d.Status
	title, problemType := d.Title, d.Type
	if title == "" {
		title = http.StatusText(status)
	}
	if problemType == "" {
		problemType = "about:blank"
	}
	instance := ""
	requestID := ""
	if r != nil {
		instance = r.URL.Path
		requestID = r.Header.Get("X-Trace-ID")
	}
	if requestID == "" {
		requestID = w.Header().Get("X-Trace-ID")
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Details{
		Type:      problemType,
		Title:     title,
		Status:    status,
		Detail:    d.Detail,
		Instance:  instance,
		RequestID: requestID,
		Code:      d.Code,
	})
}
