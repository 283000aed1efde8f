package session

import (
	"time"

	"github.com/roach88/rollcall/internal/attendance"
)

// Mode is the session's connectivity state.
type Mode int

const (
	// ModePolling re-fetches the sheet on a fixed interval.
	ModePolling Mode = iota + 1
	// ModeLive refreshes on push notifications.
	ModeLive
)

// String returns LIVE or POLLING.
func (m Mode) String() string {
	switch m {
	case ModeLive:
		return "LIVE"
	case ModePolling:
		return "POLLING"
	default:
		return "UNKNOWN"
	}
}

// State is a point-in-time view of a session's flags.
type State struct {
	Mode       Mode `json:"mode"`
	Dirty      bool `json:"dirty"`
	Committing bool `json:"committing"`
	Pending    int  `json:"pending"`
	Conflicts  int  `json:"conflicts"`
}

// ConflictNotice reports that the server value of a subject changed while
// the editor had a different value pending. It is informational: the pending
// edit stays in place and will win if committed.
type ConflictNotice struct {
	SubjectID  string            `json:"subject_id"`
	Local      attendance.Status `json:"local"`
	Remote     attendance.Status `json:"remote"`
	RecordedBy string            `json:"recorded_by,omitempty"`
	RecordedAt time.Time         `json:"recorded_at"`
}
