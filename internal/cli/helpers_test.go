package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const testRoster = `scopes:
  program-7:
    players: [p1, p2, p3]
    staff: [coach-1]
`

// testRootOptions returns root options that ignore any .env in the working
// directory.
func testRootOptions(t *testing.T) *RootOptions {
	t.Helper()
	return &RootOptions{
		Format:  "text",
		EnvFile: filepath.Join(t.TempDir(), "absent.env"),
	}
}

// writeConfig writes a CUE config file into dir and returns its path.
func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "rollcall.cue")
	require.NoError(t, os.WriteFile(path, []byte(body+"\n"), 0644))
	return path
}

// localOptions returns root options for a fresh SQLite database seeded with
// the program-7 roster.
func localOptions(t *testing.T) *RootOptions {
	t.Helper()
	dir := t.TempDir()
	rosterPath := filepath.Join(dir, "roster.yaml")
	require.NoError(t, os.WriteFile(rosterPath, []byte(testRoster), 0644))

	opts := testRootOptions(t)
	opts.Config = writeConfig(t, dir, `database: "`+filepath.Join(dir, "rollcall.db")+`"
roster_file: "`+rosterPath+`"
poll_interval: "50ms"`)
	return opts
}

// execute runs cmd with args and returns everything it printed.
func execute(cmd *cobra.Command, args ...string) (string, error) {
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// syncBuffer is a bytes.Buffer safe for a command writing on another
// goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
