// Package roster resolves who is expected on an attendance sheet and seeds
// default records for them.
package roster

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/rollcall/internal/attendance"
)

// Resolver returns the subject ids expected on a sheet.
//
// Implementations return a not-found error for an unknown scope and a
// transport error when the membership source cannot be reached.
type Resolver interface {
	ResolveRoster(ctx context.Context, sheet attendance.Sheet) ([]string, error)
}

// Static is an in-memory roster keyed by scope id. The same roster applies
// to every date and subject type.
type Static map[string][]string

// ResolveRoster implements Resolver.
func (s Static) ResolveRoster(ctx context.Context, sheet attendance.Sheet) ([]string, error) {
	ids, ok := s[sheet.ScopeID]
	if !ok {
		return nil, attendance.NotFound("no roster for scope %s", sheet.ScopeID)
	}
	out := make([]string, len(ids))
	copy(out, ids)
	return out, nil
}

// File is the YAML roster format:
//
//	scopes:
//	  program-7:
//	    players: [p1, p2, p3]
//	    staff: [coach-1]
//	    dates:
//	      "2024-03-10":
//	        players: [p1, p2]
type File struct {
	Scopes map[string]FileScope `yaml:"scopes"`
}

// FileScope lists a scope's members, optionally overridden per date.
type FileScope struct {
	Players []string                 `yaml:"players"`
	Staff   []string                 `yaml:"staff"`
	Dates   map[string]FileScopeDate `yaml:"dates,omitempty"`
}

// FileScopeDate overrides a scope's members on one date.
type FileScopeDate struct {
	Players []string `yaml:"players"`
	Staff   []string `yaml:"staff"`
}

// LoadFile reads a YAML roster file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster file: %w", err)
	}
	return ParseFile(data)
}

// ParseFile decodes YAML roster data and validates every date key.
func ParseFile(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse roster file: %w", err)
	}
	for scope, s := range f.Scopes {
		for date := range s.Dates {
			if _, err := attendance.ParseDate(date); err != nil {
				return nil, fmt.Errorf("roster scope %s: %w", scope, err)
			}
		}
	}
	return &f, nil
}

// ResolveRoster implements Resolver. A sheet with no subject type gets
// players and staff together.
func (f *File) ResolveRoster(ctx context.Context, sheet attendance.Sheet) ([]string, error) {
	s, ok := f.Scopes[sheet.ScopeID]
	if !ok {
		return nil, attendance.NotFound("no roster for scope %s", sheet.ScopeID)
	}
	players, staff := s.Players, s.Staff
	if d, ok := s.Dates[string(sheet.Date)]; ok {
		players, staff = d.Players, d.Staff
	}

	var ids []string
	switch sheet.SubjectType {
	case attendance.SubjectPlayer:
		ids = append(ids, players...)
	case attendance.SubjectStaff:
		ids = append(ids, staff...)
	default:
		ids = append(append(ids, players...), staff...)
	}
	sort.Strings(ids)
	return ids, nil
}

// HTTPResolver asks a membership service for the roster:
//
//	GET {BaseURL}/rosters/{scope}?date=YYYY-MM-DD&type=player
//	200 {"subjects": ["p1", "p2"]}
//	404 unknown scope
type HTTPResolver struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPResolver creates a resolver with a bounded request timeout.
func NewHTTPResolver(baseURL string) *HTTPResolver {
	return &HTTPResolver{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type rosterResponse struct {
	Subjects []string `json:"subjects"`
}

// ResolveRoster implements Resolver.
func (r *HTTPResolver) ResolveRoster(ctx context.Context, sheet attendance.Sheet) ([]string, error) {
	u, err := url.Parse(r.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("roster base url: %w", err)
	}
	u = u.JoinPath("rosters", sheet.ScopeID)
	q := u.Query()
	q.Set("date", string(sheet.Date))
	if sheet.SubjectType != "" {
		q.Set("type", string(sheet.SubjectType))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build roster request: %w", err)
	}

	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, attendance.Transport("roster service unreachable", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, attendance.NotFound("no roster for scope %s", sheet.ScopeID)
	case resp.StatusCode != http.StatusOK:
		return nil, attendance.Transport(fmt.Sprintf("roster service returned %d", resp.StatusCode), nil)
	}

	var body rosterResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, attendance.Transport("decode roster response", err)
	}
	return body.Subjects, nil
}
