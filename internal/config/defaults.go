package config

import (
	"time"

	"github.com/spf13/viper"
)

// Default values shared by SetDefaults and DefaultConfig.
const (
	DefaultGatewayHost = "127.0.0.1"
	DefaultGatewayPort = 18790
	DefaultBotDir      = "gofbot"
	DefaultBotScript   = "./pokecli.py"
	DefaultStopTimeout = 5 * time.Second
	DefaultErrorMarker = "ERROR"
	DefaultPagesDir    = "pages"
	DefaultRetention   = 30 * 24 * time.Hour
	DefaultPruneSpec   = "@daily"
	defaultLogLevel    = "info"
	defaultLogFormat   = "console"
)

// SetDefaults 设置所有配置项的默认值
func SetDefaults() {
	viper.SetDefault("app.root", "")

	viper.SetDefault("bot.dir", DefaultBotDir)
	viper.SetDefault("bot.python", "")
	viper.SetDefault("bot.script", DefaultBotScript)
	viper.SetDefault("bot.stop_timeout", DefaultStopTimeout)
	viper.SetDefault("bot.error_marker", DefaultErrorMarker)

	viper.SetDefault("gateway.host", DefaultGatewayHost)
	viper.SetDefault("gateway.port", DefaultGatewayPort)
	viper.SetDefault("gateway.pages_dir", DefaultPagesDir)

	viper.SetDefault("log.level", defaultLogLevel)
	viper.SetDefault("log.format", defaultLogFormat)
	viper.SetDefault("log.file", "")

	viper.SetDefault("storage.path", "")

	viper.SetDefault("history.retention", DefaultRetention)
	viper.SetDefault("history.prune_schedule", DefaultPruneSpec)
}

// DefaultConfig 返回首次运行写入磁盘的配置
func DefaultConfig() *Config {
	return &Config{
		Bot: BotConfig{
			Dir:         DefaultBotDir,
			Script:      DefaultBotScript,
			StopTimeout: DefaultStopTimeout,
			ErrorMarker: DefaultErrorMarker,
		},
		Gateway: GatewayConfig{
			Host:     DefaultGatewayHost,
			Port:     DefaultGatewayPort,
			PagesDir: DefaultPagesDir,
		},
		Log: LogConfig{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
		History: HistoryConfig{
			Retention:     DefaultRetention,
			PruneSchedule: DefaultPruneSpec,
		},
	}
}
