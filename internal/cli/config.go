package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// NewConfigCmd 创建 config 命令
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the shell configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := requireCLIContext(cmd)
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(cliCtx.Config)
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the configuration file and the resolved bot paths",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := requireCLIContext(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config:  %s\n", cliCtx.ConfigPath)
			fmt.Fprintf(out, "Root:    %s\n", cliCtx.Config.App.Root)
			fmt.Fprintf(out, "Bot:     %s\n", cliCtx.Config.BotDir())
			fmt.Fprintf(out, "Python:  %s\n", cliCtx.Config.PythonCommand())
			fmt.Fprintf(out, "Pages:   %s\n", cliCtx.Config.PagesDir())
			fmt.Fprintf(out, "History: %s\n", cliCtx.Config.Storage.Path)
			return nil
		},
	})

	return cmd
}
