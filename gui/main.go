// Package main is the entry point for the gofshell application.
// It launches the shell when run without arguments and dispatches CLI
// subcommands otherwise.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gofshell/internal/cli"
	"gofshell/internal/config"
	"gofshell/pkg/logger"
)

func main() {
	rootCmd := cli.NewRootCmd()

	guiCmd := &cli.GuiCommand{
		RunGUI: runGUI,
	}
	rootCmd.AddCommand(guiCmd.Command())

	if shouldRunGUI(os.Args[1:]) {
		rootCmd.SetArgs(append([]string{"gui"}, os.Args[1:]...))
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// shouldRunGUI reports whether the arguments carry no subcommand, only global
// flags such as --config, so the shell itself should start.
func shouldRunGUI(args []string) bool {
	for i := 0; i < len(args); i++ {
		switch arg := args[i]; arg {
		case "-c", "--config", "--socket":
			i++ // flag value
		case "-v", "--verbose", "-q", "--quiet", "--no-browser":
		default:
			if len(arg) > 0 && arg[0] == '-' {
				// --config=path and friends; help and unknown flags go to the CLI.
				if hasValue(arg, "--config") || hasValue(arg, "--socket") {
					continue
				}
			}
			return false
		}
	}
	return true
}

func hasValue(arg, flag string) bool {
	return len(arg) > len(flag) && arg[:len(flag)+1] == flag+"="
}

// runGUI runs the shell until it is interrupted or told to quit.
func runGUI(ctx context.Context, cfg *config.Config, opts cli.GuiOptions) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer logger.Close()

	app := NewApp(cfg, AppOptions{
		SocketPath:  opts.SocketPath,
		OpenBrowser: opts.OpenBrowser,
		Version:     cli.Version,
	})
	return app.run(ctx)
}
