package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"gofshell/internal/ipc"

	"github.com/spf13/cobra"
)

// NewLogoutCmd 创建 logout 命令
func NewLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Stop the bot and return the shell to the login page",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := requireCLIContext(cmd)
			if err != nil {
				return err
			}
			var status ipc.StatusPayload
			if err := cliCtx.Control(cmd.Context(), ipc.MsgLogout, nil, &status); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

// NewStatusCmd 创建 status 命令
func NewStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether the shell and the bot are running",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := requireCLIContext(cmd)
			if err != nil {
				return err
			}

			var status ipc.StatusPayload
			err = cliCtx.Control(cmd.Context(), ipc.MsgGetStatus, nil, &status)
			if errors.Is(err, ErrShellNotRunning) && !jsonOutput {
				fmt.Fprintln(cmd.OutOrStdout(), "Shell: not running")
				return nil
			}
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), status)
			}
			printStatus(cmd.OutOrStdout(), &status, time.Now())
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

// NewQuitCmd 创建 quit 命令
func NewQuitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quit",
		Short: "Stop the bot and close the running shell",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := requireCLIContext(cmd)
			if err != nil {
				return err
			}
			if err := cliCtx.Control(cmd.Context(), ipc.MsgQuit, nil, nil); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Shell is shutting down")
			return nil
		},
	}
}

func printStatus(w io.Writer, s *ipc.StatusPayload, now time.Time) {
	fmt.Fprintln(w, "Shell: running")
	if s.UIURL != "" {
		fmt.Fprintf(w, "  UI:      %s\n", s.UIURL)
	}
	fmt.Fprintf(w, "  Bot dir: %s\n", s.BotDir)
	if !s.Running {
		fmt.Fprintln(w, "Bot: stopped")
		return
	}
	fmt.Fprintln(w, "Bot: running")
	fmt.Fprintf(w, "  User:    %s\n", s.Username)
	fmt.Fprintf(w, "  PID:     %d\n", s.PID)
	fmt.Fprintf(w, "  Run:     %s\n", s.RunID)
	if !s.StartedAt.IsZero() {
		fmt.Fprintf(w, "  Uptime:  %s\n", now.Sub(s.StartedAt).Truncate(time.Second))
	}
}
