package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	DashScope DashScopeConfig `mapstructure:"dashscope"`
	Assets    AssetsConfig    `mapstructure:"assets"`
	Download  DownloadConfig  `mapstructure:"download"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`      // json 或 text
	Output     string `mapstructure:"output"`      // stdout 或 file
	Dir        string `mapstructure:"dir"`         // 日志目录
	MaxSize    int    `mapstructure:"max_size"`    // 兆字节
	MaxBackups int    `mapstructure:"max_backups"` // 备份数量
	MaxAge     int    `mapstructure:"max_age"`     // 天数
	Compress   bool   `mapstructure:"compress"`    // 是否压缩旧文件
}

// DashScopeConfig 通义万相接口配置
type DashScopeConfig struct {
	APIKey           string        `mapstructure:"api_key"`
	BaseURL          string        `mapstructure:"base_url"`
	Timeout          time.Duration `mapstructure:"timeout"`
	DefaultModel     string        `mapstructure:"default_model"`      // 文生图默认模型
	DefaultEditModel string        `mapstructure:"default_edit_model"` // 图像编辑默认模型
}

// AssetsConfig 本地任务目录配置
type AssetsConfig struct {
	Root string `mapstructure:"root"` // 每个任务一个子目录
}

type DownloadConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

// SyncConfig 任务同步相关配置
type SyncConfig struct {
	RefreshEnabled bool          `mapstructure:"refresh_enabled"`  // 是否定时刷新未完成的任务
	RefreshSpec    string        `mapstructure:"refresh_spec"`     // cron 表达式
	StatusCacheTTL time.Duration `mapstructure:"status_cache_ttl"` // 终态状态缓存时间
	ListCacheTTL   time.Duration `mapstructure:"list_cache_ttl"`   // 任务列表缓存时间
	WatchAssets    bool          `mapstructure:"watch_assets"`     // 是否监控任务目录的外部修改
}

type TelemetryConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

func Load() *Config {
	setDefaults()

	// 读取配置
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("未找到配置文件，使用默认配置")
		} else {
			log.Fatalf("读取配置文件出错: %v", err)
		}
	}

	cfg, err := Decode()
	if err != nil {
		log.Fatalf("%v", err)
	}
	return cfg
}

// Decode 从当前 viper 实例解码并校验配置
func Decode() (*Config, error) {
	setDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("无法解码配置: %w", err)
	}

	// 验证配置
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	return &config, nil
}

// BindEnv 让 DASHSCOPE_API_KEY 这类环境变量覆盖嵌套配置
func BindEnv() {
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	_ = viper.BindEnv("dashscope.api_key", "DASHSCOPE_API_KEY")
}

// setDefaults 设置默认配置
func setDefaults() {
	viper.SetDefault("server.port", "5000")

	// 日志默认配置
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.dir", "data/logs")
	viper.SetDefault("log.max_size", 100)
	viper.SetDefault("log.max_backups", 3)
	viper.SetDefault("log.max_age", 28)
	viper.SetDefault("log.compress", true)

	viper.SetDefault("dashscope.base_url", "https://dashscope.aliyuncs.com")
	viper.SetDefault("dashscope.timeout", 30*time.Second)
	viper.SetDefault("dashscope.default_model", "wan2.2-t2i-plus")
	viper.SetDefault("dashscope.default_edit_model", "wanx2.1-imageedit")

	viper.SetDefault("assets.root", "data/generated-images")

	viper.SetDefault("download.timeout", 2*time.Minute)
	viper.SetDefault("download.user_agent", "wanx-studio/1.0")

	viper.SetDefault("sync.refresh_enabled", false)
	viper.SetDefault("sync.refresh_spec", "@every 30s")
	viper.SetDefault("sync.status_cache_ttl", 10*time.Minute)
	viper.SetDefault("sync.list_cache_ttl", 30*time.Second)
	viper.SetDefault("sync.watch_assets", true)

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.endpoint", "http://127.0.0.1:4318")
}

// validateConfig 验证配置的有效性
func validateConfig(config *Config) error {
	if config.Server.Port == "" {
		return fmt.Errorf("服务器端口未设置")
	}
	if strings.TrimSpace(config.Assets.Root) == "" {
		return fmt.Errorf("任务目录未设置")
	}
	if config.DashScope.BaseURL == "" {
		return fmt.Errorf("DashScope 接口地址未设置")
	}
	if config.Sync.RefreshEnabled && config.Sync.RefreshSpec == "" {
		return fmt.Errorf("已开启定时刷新但未设置 refresh_spec")
	}
	return nil
}
