package cli

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"gofshell/internal/storage"

	"github.com/spf13/cobra"
)

const defaultRunsLimit = 20

// NewRunsCmd creates the runs command.
func NewRunsCmd() *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "runs [id]",
		Short: "List recorded bot runs",
		Long: `List the most recent bot runs recorded by the shell, newest first.
With an id, show the details of that run.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := requireCLIContext(cmd)
			if err != nil {
				return err
			}
			db, err := cliCtx.GetStorage()
			if err != nil {
				return fmt.Errorf("open run history: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				run, err := db.GetRun(args[0])
				if errors.Is(err, storage.ErrNotFound) {
					return fmt.Errorf("run %s not found", args[0])
				}
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(out, run)
				}
				printRun(out, run)
				return nil
			}

			runs, err := db.ListRuns(limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				if runs == nil {
					runs = []*storage.Run{}
				}
				return writeJSON(out, runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded.")
				return nil
			}
			printRuns(out, runs)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", defaultRunsLimit, "number of runs to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func printRuns(out io.Writer, runs []*storage.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSER\tAUTH\tSTARTED\tDURATION\tEXIT")
	fmt.Fprintln(w, "--\t----\t----\t-------\t--------\t----")

	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(r.ID),
			r.Username,
			r.AuthService,
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			runDuration(r),
			exitText(r),
		)
	}
	w.Flush()
}

func printRun(out io.Writer, r *storage.Run) {
	fmt.Fprintf(out, "Run %s\n", r.ID)
	fmt.Fprintf(out, "  User:      %s (%s)\n", r.Username, r.AuthService)
	if r.Location != "" {
		fmt.Fprintf(out, "  Location:  %s\n", r.Location)
	}
	fmt.Fprintf(out, "  Command:   %s\n", r.Command)
	fmt.Fprintf(out, "  PID:       %d\n", r.PID)
	fmt.Fprintf(out, "  Started:   %s\n", r.StartedAt.Local().Format(time.RFC3339))
	if r.EndedAt != nil {
		fmt.Fprintf(out, "  Ended:     %s\n", r.EndedAt.Local().Format(time.RFC3339))
	}
	fmt.Fprintf(out, "  Duration:  %s\n", runDuration(r))
	fmt.Fprintf(out, "  Exit:      %s\n", exitText(r))
	if r.Error != "" {
		fmt.Fprintf(out, "  Error:     %s\n", r.Error)
	}
	fmt.Fprintf(out, "  Log lines: %d\n", r.LogLines)
	fmt.Fprintf(out, "  Alerts:    %d\n", r.Alerts)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func runDuration(r *storage.Run) string {
	if r.EndedAt == nil {
		return "-"
	}
	return r.EndedAt.Sub(r.StartedAt).Truncate(time.Second).String()
}

func exitText(r *storage.Run) string {
	switch {
	case r.Running():
		return "running"
	case r.ExitCode == nil:
		return "?"
	default:
		return strconv.Itoa(*r.ExitCode)
	}
}
