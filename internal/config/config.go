package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config 是 shell 配置的根结构体
type Config struct {
	App     AppConfig     `mapstructure:"app" yaml:"app"`
	Bot     BotConfig     `mapstructure:"bot" yaml:"bot"`
	Gateway GatewayConfig `mapstructure:"gateway" yaml:"gateway"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	History HistoryConfig `mapstructure:"history" yaml:"history"`
}

// AppConfig 安装目录配置，root 下包含 gofbot/、pywin/ 和 pages/
type AppConfig struct {
	Root string `mapstructure:"root" yaml:"root"`
}

// BotConfig 子进程配置
type BotConfig struct {
	Dir         string        `mapstructure:"dir" yaml:"dir"`                   // 相对 app.root 的 bot 目录
	Python      string        `mapstructure:"python" yaml:"python"`             // 解释器，空表示按平台选择
	Script      string        `mapstructure:"script" yaml:"script"`             // 入口脚本
	StopTimeout time.Duration `mapstructure:"stop_timeout" yaml:"stop_timeout"` // 发送信号后等待退出的时间
	ErrorMarker string        `mapstructure:"error_marker" yaml:"error_marker"` // stderr 中触发告警的标记
}

// GatewayConfig UI 网关配置
type GatewayConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	PagesDir string `mapstructure:"pages_dir" yaml:"pages_dir"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"`
}

// StorageConfig 存储配置
type StorageConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// HistoryConfig 运行历史保留策略
type HistoryConfig struct {
	Retention     time.Duration `mapstructure:"retention" yaml:"retention"`
	PruneSchedule string        `mapstructure:"prune_schedule" yaml:"prune_schedule"`
}

var (
	globalConfig *Config
	configPath   string
	mu           sync.RWMutex
)

// Load 加载配置文件
// 优先级: ENV > 配置文件 > 默认值
func Load(path string) (*Config, error) {
	mu.Lock()
	defer mu.Unlock()

	SetDefaults()

	viper.SetEnvPrefix("GOFSHELL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if path != "" {
		expandedPath, err := ExpandPath(path)
		if err != nil {
			return nil, err
		}
		configPath = expandedPath

		viper.SetConfigFile(expandedPath)
		if err := viper.ReadInConfig(); err != nil {
			// 忽略文件不存在错误
			var pathErr *os.PathError
			if !errors.As(err, &pathErr) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", expandedPath, err)
			}
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.resolve(); err != nil {
		return nil, err
	}

	globalConfig = &cfg
	return &cfg, nil
}

// resolve 填充依赖运行环境的默认值
func (c *Config) resolve() error {
	if c.App.Root == "" {
		root, err := ExecutableDir()
		if err != nil {
			return err
		}
		c.App.Root = root
	}
	root, err := ExpandPath(c.App.Root)
	if err != nil {
		return err
	}
	c.App.Root = root

	if c.Storage.Path == "" {
		p, err := DefaultDataPath()
		if err != nil {
			return err
		}
		c.Storage.Path = p
	}
	return nil
}

// BotDir 返回 bot 工作目录的绝对路径
func (c *Config) BotDir() string {
	return c.underRoot(c.Bot.Dir)
}

// PagesDir 返回 UI 页面目录的绝对路径
func (c *Config) PagesDir() string {
	return c.underRoot(c.Gateway.PagesDir)
}

// PythonCommand 返回启动 bot 使用的解释器。
// Windows 下默认使用安装包自带的 pywin/python.exe。
func (c *Config) PythonCommand() string {
	return c.pythonFor(runtime.GOOS)
}

func (c *Config) pythonFor(goos string) string {
	if c.Bot.Python != "" {
		return c.Bot.Python
	}
	if goos == "windows" {
		return filepath.Join(c.App.Root, "pywin", "python.exe")
	}
	return "python"
}

// Addr 返回网关监听地址
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Gateway.Host, c.Gateway.Port)
}

func (c *Config) underRoot(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.App.Root, p)
}

// GetConfig 获取当前配置
func GetConfig() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return globalConfig
}

// ConfigPath 返回最近一次 Load 使用的文件路径
func ConfigPath() string {
	mu.RLock()
	defer mu.RUnlock()
	return configPath
}

// WriteDefault 首次运行时写入默认配置文件，文件已存在时不做任何事
func WriteDefault(path string) (bool, error) {
	expanded, err := ExpandPath(path)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(expanded); err == nil {
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(expanded), 0755); err != nil {
		return false, fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return false, fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(expanded, data, 0644); err != nil {
		return false, fmt.Errorf("write config: %w", err)
	}
	return true, nil
}

// Reset 重置全局状态（仅用于测试）
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	globalConfig = nil
	configPath = ""
	viper.Reset()
}
