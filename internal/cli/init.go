package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/rollcall/internal/attendance"
)

// InitOptions holds flags for the init command.
type InitOptions struct {
	*RootOptions
	sheetFlags
}

// InitResult is the JSON payload of the init command.
type InitResult struct {
	Sheet   attendance.Sheet `json:"sheet"`
	Created int              `json:"created"`
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init <date> <scope>",
		Short: "Seed a sheet from the roster",
		Long: `Create an unset record for every roster member of a sheet that has none.

Running it again creates nothing and never overwrites a mark.

Examples:
  rollcall init 2024-03-10 program-7
  rollcall init 2024-03-10 program-7 --type staff
  rollcall init 2024-03-10 program-7 --server http://localhost:8080`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.SubjectType, "type", "t", string(attendance.SubjectPlayer), "subject type (player|staff)")

	return cmd
}

func runInit(opts *InitOptions, args []string, cmd *cobra.Command) error {
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

	created, err := b.Initialize(commandContext(cmd), sheet)
	if err != nil {
		return out.Fail("initialize failed", err)
	}

	if opts.Format == "json" {
		return out.Success(InitResult{Sheet: sheet, Created: created})
	}
	return out.Success(fmt.Sprintf("Created %d record(s) on %s", created, sheet))
}

// formatterFor builds the formatter a command writes through.
func formatterFor(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// commandContext returns the command's context, or Background when run
// without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
