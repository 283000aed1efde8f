// Package api holds the JSON wire types shared by the HTTP server and the
// remote client.
package api

import (
	"fmt"
	"net/url"

	"github.com/roach88/rollcall/internal/attendance"
)

// EditorHeader carries the editor identity when bearer tokens are disabled.
const EditorHeader = "X-Editor-ID"

// TokenParam carries a bearer token on WebSocket upgrades from clients that
// cannot set headers.
const TokenParam = "access_token"

// SheetResponse is the body of GET /v1/sheets/:date/:scope.
type SheetResponse struct {
	Date        attendance.Date        `json:"date"`
	ScopeID     string                 `json:"scope_id"`
	SubjectType attendance.SubjectType `json:"subject_type,omitempty"`
	Records     []attendance.Record    `json:"records"`
}

// CommitRequest is the body of PUT /v1/sheets/:date/:scope.
type CommitRequest struct {
	SubjectType string         `json:"subject_type" validate:"required,oneof=player staff"`
	Entries     []EntryRequest `json:"entries" validate:"required,min=1,dive"`
}

// EntryRequest is one subject inside a CommitRequest.
type EntryRequest struct {
	SubjectID string `json:"subject_id" validate:"required,max=128"`
	Status    string `json:"status" validate:"required,oneof=unset present late absent excused"`
}

// CommitResponse is the body of a successful commit.
type CommitResponse struct {
	Written int `json:"written"`
}

// InitializeResponse is the body of POST .../initialize.
type InitializeResponse struct {
	Created int `json:"created"`
}

// ErrorResponse wraps every non-2xx body.
type ErrorResponse struct {
	Error *attendance.Error `json:"error"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// NewCommitRequest builds the wire form of a bulk upsert.
func NewCommitRequest(t attendance.SubjectType, entries []attendance.Entry) CommitRequest {
	req := CommitRequest{SubjectType: string(t), Entries: make([]EntryRequest, len(entries))}
	for i, e := range entries {
		req.Entries[i] = EntryRequest{SubjectID: e.SubjectID, Status: string(e.Status)}
	}
	return req
}

// ToEntries converts the request entries to domain entries.
func (r CommitRequest) ToEntries() []attendance.Entry {
	out := make([]attendance.Entry, len(r.Entries))
	for i, e := range r.Entries {
		out[i] = attendance.Entry{SubjectID: e.SubjectID, Status: attendance.Status(e.Status)}
	}
	return out
}

// SheetPath returns /v1/sheets/{date}/{scope} with the scope escaped.
func SheetPath(date attendance.Date, scope string) string {
	return fmt.Sprintf("/v1/sheets/%s/%s", date, url.PathEscape(scope))
}

// InitializePath returns the initialize endpoint for a sheet.
func InitializePath(date attendance.Date, scope string) string {
	return SheetPath(date, scope) + "/initialize"
}

// EventsPath returns the WebSocket endpoint for a sheet.
func EventsPath(date attendance.Date, scope string) string {
	return SheetPath(date, scope) + "/events"
}
