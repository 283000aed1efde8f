package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/rollcall/internal/attendance"
)

// Scenario defines a conformance scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Sheet is the sheet every step acts on.
	Sheet SheetSpec `yaml:"sheet"`

	// Roster maps scope ids to their members.
	Roster map[string][]string `yaml:"roster"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// SheetSpec is the YAML form of attendance.Sheet.
type SheetSpec struct {
	Date  string `yaml:"date"`
	Scope string `yaml:"scope"`
	Type  string `yaml:"type"`
}

// Sheet converts s to a normalized attendance.Sheet.
func (s SheetSpec) Sheet() (attendance.Sheet, error) {
	typ := s.Type
	if typ == "" {
		typ = string(attendance.SubjectPlayer)
	}
	return attendance.Sheet{
		Date:        attendance.Date(s.Date),
		ScopeID:     s.Scope,
		SubjectType: attendance.SubjectType(typ),
	}.Normalize(true)
}

// Step is one action in a scenario.
type Step struct {
	// Action is one of the Action* constants.
	Action string `yaml:"action"`

	// Session names the session (and editor) the step acts through.
	Session string `yaml:"session,omitempty"`

	// Subject and Status are used by edit.
	Subject string `yaml:"subject,omitempty"`
	Status  string `yaml:"status,omitempty"`

	// Editor and Entries are used by write.
	Editor  string            `yaml:"editor,omitempty"`
	Entries map[string]string `yaml:"entries,omitempty"`

	// Expect is checked right after the step.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect specifies what a step should produce.
type Expect struct {
	// Error is the expected error code. Empty means the step must succeed.
	Error string `yaml:"error,omitempty"`

	// Created is the expected initialize count.
	Created *int `yaml:"created,omitempty"`

	// Effective is a subset match on the session's effective map.
	Effective map[string]string `yaml:"effective,omitempty"`

	// Pending is an exact match on the session's overlay, when set.
	Pending map[string]string `yaml:"pending,omitempty"`

	// Conflicts is an exact match on the conflicted subject ids, when set.
	Conflicts []string `yaml:"conflicts,omitempty"`
}

// Assertion validates final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "stored": stored records match Expect (and RecordedBy, if set)
	// - "effective": a session's effective map matches Expect
	// - "conflicts": a session's conflicted subjects equal Subjects
	// - "events": exactly Count change events were published
	Type string `yaml:"type"`

	// Session names the session (effective, conflicts).
	Session string `yaml:"session,omitempty"`

	// Expect maps subject ids to statuses. Subset match.
	Expect map[string]string `yaml:"expect,omitempty"`

	// RecordedBy maps subject ids to the expected last editor.
	RecordedBy map[string]string `yaml:"recorded_by,omitempty"`

	// Subjects is the expected conflict list.
	Subjects []string `yaml:"subjects,omitempty"`

	// Count is the expected event count.
	Count int `yaml:"count,omitempty"`
}

// Step action constants.
const (
	ActionInitialize = "initialize"
	ActionOpen       = "open"
	ActionEdit       = "edit"
	ActionCommit     = "commit"
	ActionDiscard    = "discard"
	ActionRefresh    = "refresh"
	ActionWrite      = "write"
	ActionClose      = "close"
)

// Assertion type constants.
const (
	AssertStored    = "stored"
	AssertEffective = "effective"
	AssertConflicts = "conflicts"
	AssertEvents    = "events"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if _, err := s.Sheet.Sheet(); err != nil {
		return fmt.Errorf("sheet: %w", err)
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("step %d (%s): %w", i, step.Action, err)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertion %d: %w", i, err)
		}
	}

	return nil
}

func validateStep(step Step) error {
	switch step.Action {
	case ActionInitialize:
		return nil
	case ActionOpen, ActionCommit, ActionDiscard, ActionRefresh, ActionClose:
		if step.Session == "" {
			return fmt.Errorf("session is required")
		}
	case ActionEdit:
		if step.Session == "" || step.Subject == "" {
			return fmt.Errorf("session and subject are required")
		}
	case ActionWrite:
		if len(step.Entries) == 0 {
			return fmt.Errorf("entries are required")
		}
	case "":
		return fmt.Errorf("action is required")
	default:
		return fmt.Errorf("unknown action %q", step.Action)
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertStored:
		if len(a.Expect) == 0 && len(a.RecordedBy) == 0 {
			return fmt.Errorf("stored requires expect or recorded_by")
		}
	case AssertEffective:
		if a.Session == "" || len(a.Expect) == 0 {
			return fmt.Errorf("effective requires session and expect")
		}
	case AssertConflicts:
		if a.Session == "" {
			return fmt.Errorf("conflicts requires session")
		}
	case AssertEvents:
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
