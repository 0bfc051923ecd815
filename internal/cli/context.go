package cli

import (
	"context"
	"errors"
	"sync"
	"time"

	"gofshell/internal/config"
	"gofshell/internal/ipc"
	"gofshell/internal/storage"
	"gofshell/pkg/logger"

	"github.com/rs/zerolog"
)

// controlTimeout bounds a round trip to the running shell. Starting the bot
// reconciles files on disk first, so it gets the longer budget.
const (
	controlTimeout      = 5 * time.Second
	startControlTimeout = 30 * time.Second
)

var errNoContext = errors.New("cli context not initialized")

// ErrShellNotRunning is returned by control commands when no shell listens on
// the control socket.
var ErrShellNotRunning = errors.New("gofshell is not running (start it with: gofshell gui)")

// CLIContext CLI 上下文
type CLIContext struct {
	Config      *config.Config
	ConfigPath  string
	Logger      *zerolog.Logger
	storageOnce sync.Once
	storage     *storage.DB
	storageErr  error
	storagePath string
	socketPath  string
	Verbose     bool
	Quiet       bool
}

// NewCLIContext 创建 CLI 上下文
func NewCLIContext(cfg *config.Config, configPath string, log *zerolog.Logger, storagePath string, verbose, quiet bool) *CLIContext {
	return &CLIContext{
		Config:      cfg,
		ConfigPath:  configPath,
		Logger:      log,
		storagePath: storagePath,
		Verbose:     verbose,
		Quiet:       quiet,
	}
}

// GetStorage 获取存储连接（懒加载）
func (c *CLIContext) GetStorage() (*storage.DB, error) {
	c.storageOnce.Do(func() {
		c.storage, c.storageErr = storage.Open(c.storagePath)
	})
	return c.storage, c.storageErr
}

// SocketPath 返回控制 socket 路径，未指定时使用平台默认值
func (c *CLIContext) SocketPath() (string, error) {
	if c.socketPath != "" {
		return c.socketPath, nil
	}
	return ipc.DefaultSocketPath()
}

// Control 向运行中的 shell 发送一条控制命令
func (c *CLIContext) Control(ctx context.Context, msgType ipc.MessageType, payload, out any) error {
	path, err := c.SocketPath()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.controlTimeoutFor(msgType))
	defer cancel()

	err = ipc.Send(ctx, path, msgType, payload, out)
	if errors.Is(err, ipc.ErrDial) {
		return ErrShellNotRunning
	}
	return err
}

// controlTimeoutFor 返回一条控制命令的超时。logout 与 quit 需等待 bot 停止，
// 最坏情况是中断与强杀各等一个 stop_timeout。
func (c *CLIContext) controlTimeoutFor(msgType ipc.MessageType) time.Duration {
	switch msgType {
	case ipc.MsgStartBot:
		return startControlTimeout
	case ipc.MsgLogout, ipc.MsgQuit:
		stop := config.DefaultStopTimeout
		if c.Config != nil && c.Config.Bot.StopTimeout > 0 {
			stop = c.Config.Bot.StopTimeout
		}
		return 2*stop + controlTimeout
	default:
		return controlTimeout
	}
}

// Close 关闭资源
func (c *CLIContext) Close() error {
	if c.storage != nil {
		return c.storage.Close()
	}
	return nil
}

// Log 获取 Logger
func (c *CLIContext) Log() *zerolog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return logger.Get()
}
