package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validScenario = `
name: valid
description: a valid scenario
sheet:
  date: "2024-03-10"
  scope: program-7
roster:
  program-7: [p1]
steps:
  - action: initialize
  - action: open
    session: coach-a
  - action: edit
    session: coach-a
    subject: p1
    status: late
    expect:
      pending: {p1: late}
assertions:
  - type: events
    count: 1
`

func TestParseScenario_Valid(t *testing.T) {
	s, err := ParseScenario([]byte(validScenario))
	require.NoError(t, err)

	assert.Equal(t, "valid", s.Name)
	assert.Equal(t, []string{"p1"}, s.Roster["program-7"])
	require.Len(t, s.Steps, 3)
	assert.Equal(t, ActionEdit, s.Steps[2].Action)
	assert.Equal(t, map[string]string{"p1": "late"}, s.Steps[2].Expect.Pending)

	sheet, err := s.Sheet.Sheet()
	require.NoError(t, err)
	assert.Equal(t, "2024-03-10/program-7/player", sheet.String(), "type defaults to player")
}

func TestLoadScenario_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "valid.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validScenario), 0o644))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "valid", s.Name)

	_, err = LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read scenario file")
}

func TestParseScenario_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown field",
			yaml: "name: x\ndescription: d\nsheet: {date: \"2024-03-10\", scope: s}\nstep: []\n",
			want: "failed to parse YAML",
		},
		{
			name: "missing name",
			yaml: "description: d\nsheet: {date: \"2024-03-10\", scope: s}\nsteps: [{action: initialize}]\n",
			want: "name is required",
		},
		{
			name: "missing description",
			yaml: "name: x\nsheet: {date: \"2024-03-10\", scope: s}\nsteps: [{action: initialize}]\n",
			want: "description is required",
		},
		{
			name: "bad date",
			yaml: "name: x\ndescription: d\nsheet: {date: \"10/03/2024\", scope: s}\nsteps: [{action: initialize}]\n",
			want: "sheet",
		},
		{
			name: "bad subject type",
			yaml: "name: x\ndescription: d\nsheet: {date: \"2024-03-10\", scope: s, type: guest}\nsteps: [{action: initialize}]\n",
			want: "sheet",
		},
		{
			name: "no steps",
			yaml: "name: x\ndescription: d\nsheet: {date: \"2024-03-10\", scope: s}\n",
			want: "steps list is required",
		},
		{
			name: "unknown action",
			yaml: "name: x\ndescription: d\nsheet: {date: \"2024-03-10\", scope: s}\nsteps: [{action: teleport}]\n",
			want: "unknown action",
		},
		{
			name: "edit without subject",
			yaml: "name: x\ndescription: d\nsheet: {date: \"2024-03-10\", scope: s}\nsteps: [{action: edit, session: a}]\n",
			want: "session and subject are required",
		},
		{
			name: "commit without session",
			yaml: "name: x\ndescription: d\nsheet: {date: \"2024-03-10\", scope: s}\nsteps: [{action: commit}]\n",
			want: "session is required",
		},
		{
			name: "write without entries",
			yaml: "name: x\ndescription: d\nsheet: {date: \"2024-03-10\", scope: s}\nsteps: [{action: write, editor: a}]\n",
			want: "entries are required",
		},
		{
			name: "unknown assertion",
			yaml: "name: x\ndescription: d\nsheet: {date: \"2024-03-10\", scope: s}\nsteps: [{action: initialize}]\nassertions: [{type: vibes}]\n",
			want: "unknown assertion type",
		},
		{
			name: "effective without session",
			yaml: "name: x\ndescription: d\nsheet: {date: \"2024-03-10\", scope: s}\nsteps: [{action: initialize}]\nassertions: [{type: effective, expect: {p1: late}}]\n",
			want: "effective requires session",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
