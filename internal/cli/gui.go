package cli

import (
	"context"

	"gofshell/internal/config"

	"github.com/spf13/cobra"
)

// GuiOptions are the gui command flags.
type GuiOptions struct {
	SocketPath  string
	OpenBrowser bool
}

// GuiCommand represents the gui subcommand
type GuiCommand struct {
	RunGUI func(ctx context.Context, cfg *config.Config, opts GuiOptions) error
}

// Command returns the cobra command for gui
func (g *GuiCommand) Command() *cobra.Command {
	var noBrowser bool

	cmd := &cobra.Command{
		Use:   "gui",
		Short: "Launch the shell and its UI",
		Long: `Launch the gofshell UI gateway and wait for a login.
This is the default command when gofshell is run without arguments.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := requireCLIContext(cmd)
			if err != nil {
				return err
			}

			// 首次运行写入默认配置，便于用户修改
			if written, err := config.WriteDefault(cliCtx.ConfigPath); err != nil {
				cliCtx.Log().Warn().Err(err).Msg("Failed to write default config")
			} else if written {
				cliCtx.Log().Info().Str("path", cliCtx.ConfigPath).Msg("Wrote default config")
			}

			socketPath, err := cliCtx.SocketPath()
			if err != nil {
				return err
			}
			if g.RunGUI == nil {
				return nil
			}
			return g.RunGUI(cmd.Context(), cliCtx.Config, GuiOptions{
				SocketPath:  socketPath,
				OpenBrowser: !noBrowser,
			})
		},
	}

	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "do not open the UI in a browser")

	return cmd
}
