package harness

// TraceEvent records one step outcome or one published change event.
type TraceEvent struct {
	Seq  int64  `json:"seq"`
	Type string `json:"type"` // "step" or "event"

	// Step fields.
	Action  string `json:"action,omitempty"`
	Session string `json:"session,omitempty"`
	Subject string `json:"subject,omitempty"`
	Status  string `json:"status,omitempty"`
	Outcome string `json:"outcome,omitempty"` // "ok" or an error code
	Created *int   `json:"created,omitempty"`

	// Session view after the step.
	Effective map[string]string `json:"effective,omitempty"`
	Pending   map[string]string `json:"pending,omitempty"`
	Conflicts []string          `json:"conflicts,omitempty"`

	// Event fields.
	EventID string `json:"event_id,omitempty"`
	Editor  string `json:"editor,omitempty"`
	Count   int    `json:"count,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace holds step outcomes and change events in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Stored is the final sheet, subject -> status.
	Stored map[string]string `json:"stored"`

	// Events is the number of change events published.
	Events int `json:"events"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		Stored: map[string]string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// addTrace appends ev with the next sequence number.
func (r *Result) addTrace(ev TraceEvent) {
	ev.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, ev)
}
