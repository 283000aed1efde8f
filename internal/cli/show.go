package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/rollcall/internal/attendance"
)

// ShowOptions holds flags for the show command.
type ShowOptions struct {
	*RootOptions
	sheetFlags
}

// ShowResult is the JSON payload of the show command.
type ShowResult struct {
	Sheet   attendance.Sheet    `json:"sheet"`
	Records []attendance.Record `json:"records"`
	Summary attendance.Summary  `json:"summary"`
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "show <date> <scope>",
		Short: "Print a sheet and its totals",
		Long: `Print every record on a sheet, ordered by subject, followed by a count
per status.

Examples:
  rollcall show 2024-03-10 program-7
  rollcall show 2024-03-10 program-7 --type staff --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.SubjectType, "type", "t", "", "only this subject type (player|staff)")

	return cmd
}

func runShow(opts *ShowOptions, args []string, cmd *cobra.Command) error {
	out := formatterFor(opts.RootOptions, cmd)

	sheet, err := opts.sheet(args, false)
	if err != nil {
		return out.Fail("invalid sheet", err)
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

	records, err := b.Get(commandContext(cmd), sheet)
	if err != nil {
		return out.Fail("read failed", err)
	}
	if records == nil {
		records = []attendance.Record{}
	}

	result := ShowResult{
		Sheet:   sheet,
		Records: records,
		Summary: attendance.Summarize(records),
	}
	if opts.Format == "json" {
		return out.Success(result)
	}

	writeSheet(out.Writer, result)
	return nil
}

// writeSheet renders a sheet as aligned text.
func writeSheet(w io.Writer, r ShowResult) {
	fmt.Fprintf(w, "%s\n", r.Sheet)
	if len(r.Records) == 0 {
		fmt.Fprintln(w, "  (no records)")
	}

	width := 0
	for _, rec := range r.Records {
		width = max(width, len(rec.SubjectID))
	}
	for _, rec := range r.Records {
		line := fmt.Sprintf("  %-*s  %-7s  %s", width, rec.SubjectID, rec.Status, rec.RecordedBy)
		fmt.Fprintln(w, strings.TrimRight(line, " "))
	}

	parts := make([]string, 0, len(attendance.Statuses))
	for _, st := range attendance.Statuses {
		parts = append(parts, fmt.Sprintf("%s %d", st, r.Summary[st]))
	}
	fmt.Fprintf(w, "Total %d: %s\n", r.Summary.Total(), strings.Join(parts, ", "))
}
