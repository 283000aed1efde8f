package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/rollcall/internal/attendance"
	"github.com/roach88/rollcall/internal/session"
)

// CommitOptions holds flags for the commit command.
type CommitOptions struct {
	*RootOptions
	sheetFlags
	Editor string
}

// CommitResult is the JSON payload of the commit command.
type CommitResult struct {
	Sheet   attendance.Sheet             `json:"sheet"`
	Editor  string                       `json:"editor"`
	Edited  int                          `json:"edited"`
	Written map[string]attendance.Status `json:"written"`
}

// NewCommitCommand creates the commit command.
func NewCommitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CommitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "commit <date> <scope> <subject=status>...",
		Short: "Mark subjects and commit the whole sheet",
		Long: `Open a session on a sheet, apply the given marks, and commit.

The commit carries every subject on the sheet, not only the marked ones:
unmarked subjects are re-sent with the value the session loaded.

Statuses: unset, present, late, absent, excused.

Examples:
  rollcall commit 2024-03-10 program-7 p1=present p2=late --editor coach-a
  rollcall commit 2024-03-10 program-7 coach-1=present --type staff --editor admin`,
		Args:          cobra.MinimumNArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommit(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.SubjectType, "type", "t", string(attendance.SubjectPlayer), "subject type (player|staff)")
	cmd.Flags().StringVarP(&opts.Editor, "editor", "e", "", "editor id recorded on every written record (required)")
	_ = cmd.MarkFlagRequired("editor")

	return cmd
}

func runCommit(opts *CommitOptions, args []string, cmd *cobra.Command) error {
	out := formatterFor(opts.RootOptions, cmd)

	sheet, err := opts.sheet(args[:2], true)
	if err != nil {
		return out.Fail("invalid sheet", err)
	}
	marks, err := parseMarks(args[2:])
	if err != nil {
		return out.Fail("invalid mark", err)
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	b, err := openBackend(cfg)
	if err != nil {
		return out.Fail("open backend", err)
	}
	defer b.Close()

	ctx := commandContext(cmd)
	s, err := session.Open(ctx, b, sheet, opts.Editor, session.WithPollInterval(cfg.PollInterval))
	if err != nil {
		return out.Fail("open session", err)
	}
	defer s.Close()
	out.VerboseLog("session %s opened (%s)", s.ID(), s.Mode())

	for _, m := range marks {
		if err := s.Edit(m.SubjectID, m.Status); err != nil {
			return out.Fail("invalid mark", err)
		}
	}
	written := s.EffectiveMap()

	if err := s.Commit(ctx); err != nil {
		return out.Fail("commit failed", err)
	}

	if opts.Format == "json" {
		return out.Success(CommitResult{
			Sheet:   s.Sheet(),
			Editor:  s.Editor(),
			Edited:  len(marks),
			Written: written,
		})
	}
	return out.Success(fmt.Sprintf("Committed %d record(s) on %s as %s (%d marked)",
		len(written), s.Sheet(), s.Editor(), len(marks)))
}

// parseMarks reads subject=status arguments. Later marks for the same
// subject win, as they would in a session.
func parseMarks(args []string) ([]attendance.Entry, error) {
	out := make([]attendance.Entry, 0, len(args))
	for _, arg := range args {
		id, raw, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, attendance.Invalid("entries", "expected subject=status, got %q", arg)
		}
		st, err := attendance.ParseStatus(strings.ToLower(strings.TrimSpace(raw)))
		if err != nil {
			return nil, err
		}
		id, err = attendance.NormalizeID("subject_id", id)
		if err != nil {
			return nil, err
		}
		out = append(out, attendance.Entry{SubjectID: id, Status: st})
	}
	return out, nil
}
