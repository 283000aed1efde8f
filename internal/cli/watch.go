package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/rollcall/internal/attendance"
	"github.com/roach88/rollcall/internal/session"
)

// DefaultWatchEditor is the editor id watch sessions open with. Watching
// never writes.
const DefaultWatchEditor = "rollcall-watch"

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	sheetFlags
	Editor string
}

// WatchUpdate is one JSON line of the watch command.
type WatchUpdate struct {
	Mode    string              `json:"mode"`
	Records []attendance.Record `json:"records"`
	Summary attendance.Summary  `json:"summary"`
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch <date> <scope>",
		Short: "Follow a sheet as editors commit",
		Long: `Print a sheet, then print it again after every change until interrupted.

With --server the sheet follows the server's change stream and falls back to
polling at poll_interval while the stream is down. Without it the local
database is polled.

Examples:
  rollcall watch 2024-03-10 program-7 --server http://localhost:8080
  rollcall watch 2024-03-10 program-7 --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.SubjectType, "type", "t", string(attendance.SubjectPlayer), "subject type (player|staff)")
	cmd.Flags().StringVarP(&opts.Editor, "editor", "e", DefaultWatchEditor, "editor id for the session")

	return cmd
}

func runWatch(opts *WatchOptions, args []string, cmd *cobra.Command) error {
	out := formatterFor(opts.RootOptions, cmd)

	sheet, err := opts.sheet(args, true)
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

	var src session.Backend = b
	if cfg.Server == "" {
		src = pollingBackend{b.service}
	}

	// Handlers only signal; printing happens on this goroutine.
	refreshed := make(chan struct{}, 1)
	modeChanged := make(chan struct{}, 1)
	ctx, cancel := signalContext(cmd)
	defer cancel()
	s, err := session.Open(ctx, src, sheet, opts.Editor,
		session.WithPollInterval(cfg.PollInterval),
		session.WithRefreshHandler(func() { notify(refreshed) }),
		session.WithModeHandler(func(session.Mode) { notify(modeChanged) }),
	)
	if err != nil {
		return out.Fail("open session", err)
	}
	defer s.Close()
	out.VerboseLog("session %s opened (%s)", s.ID(), s.Mode())

	if err := printWatch(out, s); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-modeChanged:
			out.VerboseLog("connectivity: %s", s.Mode())
		case <-refreshed:
			if err := printWatch(out, s); err != nil {
				return err
			}
		}
	}
}

func printWatch(out *OutputFormatter, s *session.Session) error {
	records := s.Baseline()
	if records == nil {
		records = []attendance.Record{}
	}
	summary := attendance.Summarize(records)

	if out.Format == "json" {
		return out.Success(WatchUpdate{
			Mode:    s.Mode().String(),
			Records: records,
			Summary: summary,
		})
	}

	fmt.Fprintf(out.Writer, "[%s] ", s.Mode())
	writeSheet(out.Writer, ShowResult{Sheet: s.Sheet(), Records: records, Summary: summary})
	return nil
}

// notify signals ch without blocking. One pending signal is enough.
func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
