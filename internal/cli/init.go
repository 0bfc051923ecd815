package cli

import (
	"fmt"
	"io"
	"os"

	"gofshell/internal/config"

	"github.com/spf13/cobra"
)

// InitOptions init 命令选项
type InitOptions struct {
	Force bool
}

// NewInitCmd 创建 init 命令
func NewInitCmd() *cobra.Command {
	opts := &InitOptions{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default gofshell configuration",
		Long:  "Write the default configuration file so it can be edited before the first run",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := requireCLIContext(cmd)
			if err != nil {
				return err
			}
			return RunInit(cmd.OutOrStdout(), cliCtx.ConfigPath, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "overwrite existing configuration")

	return cmd
}

// RunInit 执行初始化
func RunInit(out io.Writer, configPath string, opts *InitOptions) error {
	path, err := config.ExpandPath(configPath)
	if err != nil {
		return err
	}

	// 检查是否已存在
	if _, err := os.Stat(path); err == nil {
		if !opts.Force {
			return fmt.Errorf("configuration already exists at %s (use --force to overwrite)", path)
		}
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("remove existing config: %w", err)
		}
	}

	if _, err := config.WriteDefault(path); err != nil {
		return err
	}

	fmt.Fprintf(out, "Configuration written to %s\n", path)
	fmt.Fprintln(out, "Set app.root to the directory holding gofbot/ if gofshell is not installed next to it.")
	return nil
}
