package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gofshell/internal/botconfig"
	"gofshell/internal/ipc"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// StartOptions start 命令选项
type StartOptions struct {
	Auth          string
	Username      string
	Location      string
	WalkSpeed     string
	GMapKey       string
	PasswordStdin bool
}

// NewStartCmd 创建 start 命令
func NewStartCmd() *cobra.Command {
	opts := &StartOptions{}

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Log in and start the bot in the running shell",
		Long: `Start the bot with the given account, the same way the login page does.
The password is read from the terminal without echo, or from stdin with
--password-stdin.`,
		Example: `  gofshell start --auth ptc --user ash --location "Pallet Town"
  echo "$PW" | gofshell start --auth google --user ash@gmail.com --password-stdin`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := requireCLIContext(cmd)
			if err != nil {
				return err
			}

			password, err := readPassword(cmd.InOrStdin(), cmd.ErrOrStderr(), opts.PasswordStdin)
			if err != nil {
				return err
			}
			req := opts.Request(password)
			if err := req.Validate(); err != nil {
				return err
			}

			var status ipc.StatusPayload
			if err := cliCtx.Control(cmd.Context(), ipc.MsgStartBot, req, &status); err != nil {
				if ipc.IsCode(err, ipc.CodeAlreadyRunning) {
					return errors.New("bot is already running (use: gofshell logout)")
				}
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Bot started for %s (pid %d)\n", status.Username, status.PID)
			if status.UIURL != "" {
				fmt.Fprintf(out, "Log: %s\n", status.UIURL)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Auth, "auth", botconfig.AuthPTC, "auth service: google or ptc")
	cmd.Flags().StringVarP(&opts.Username, "user", "u", "", "account username")
	cmd.Flags().StringVarP(&opts.Location, "location", "l", "", "start location (address or \"lat,lng\")")
	cmd.Flags().StringVar(&opts.WalkSpeed, "walk", "", "walk speed override")
	cmd.Flags().StringVar(&opts.GMapKey, "gmapkey", "", "Google Maps API key")
	cmd.Flags().BoolVar(&opts.PasswordStdin, "password-stdin", false, "read the password from stdin")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

// Request 构造与登录页相同的启动请求
func (o *StartOptions) Request(password string) botconfig.StartRequest {
	req := botconfig.StartRequest{
		Auth:     strings.ToLower(strings.TrimSpace(o.Auth)),
		Location: o.Location,
		Options: botconfig.Options{
			GoogleMapsAPI: o.GMapKey,
			WalkSpeed:     strings.TrimSpace(o.WalkSpeed),
		},
	}
	if req.Auth == botconfig.AuthGoogle {
		req.Options.GoogleUsername = o.Username
		req.Options.GooglePassword = password
	} else {
		req.Options.PTCUsername = o.Username
		req.Options.PTCPassword = password
	}
	return req
}

// readPassword reads one line from in when fromStdin is set, otherwise
// prompts on the terminal with echo disabled.
func readPassword(in io.Reader, prompt io.Writer, fromStdin bool) (string, error) {
	if fromStdin {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("read password: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("stdin is not a terminal (use --password-stdin)")
	}
	fmt.Fprint(prompt, "Password: ")
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(prompt)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}
