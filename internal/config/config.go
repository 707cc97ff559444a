package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Paths    PathsConfig    `mapstructure:"paths"`
	Server   ServerConfig   `mapstructure:"server"`
	Download DownloadConfig `mapstructure:"download"`
	Hub      HubConfig      `mapstructure:"hub"`
	LogLevel string         `mapstructure:"log_level"`
}

type PathsConfig struct {
	RegistryPath string `mapstructure:"registry_path"`
	ModelsDir    string `mapstructure:"models_dir"`
}

type ServerConfig struct {
	ListenAddr      string `mapstructure:"listen_addr"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"`
}

type DownloadConfig struct {
	ChunkSizeKB      int    `mapstructure:"chunk_size_kb"`
	UpdateIntervalMS int    `mapstructure:"update_interval_ms"`
	Endpoint         string `mapstructure:"endpoint"`
	AuthToken        string `mapstructure:"auth_token"`
}

type HubConfig struct {
	CacheDir string `mapstructure:"cache_dir"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		Paths: PathsConfig{
			RegistryPath: "models/registry.json",
			ModelsDir:    "models",
		},
		Server: ServerConfig{
			ListenAddr:      ":8080",
			ShutdownTimeout: 30,
		},
		Download: DownloadConfig{
			ChunkSizeKB:      64,
			UpdateIntervalMS: 500,
			Endpoint:         "https://huggingface.co/%s/resolve/main/%s",
			AuthToken:        "",
		},
		Hub: HubConfig{
			CacheDir: "",
		},
		LogLevel: "info",
	}
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("paths-registry-path", defaults.Paths.RegistryPath, "Path to the model registry JSON file")
	fs.String("paths-models-dir", defaults.Paths.ModelsDir, "Directory where downloaded models are stored")
	fs.String("server-listen-addr", defaults.Server.ListenAddr, "HTTP listen address")
	fs.Int("server-shutdown-timeout", defaults.Server.ShutdownTimeout, "Graceful shutdown drain period in seconds")
	fs.Int("download-chunk-size-kb", defaults.Download.ChunkSizeKB, "Download chunk size in KiB")
	fs.Int("download-update-interval-ms", defaults.Download.UpdateIntervalMS, "Minimum milliseconds between persisted progress updates")
	fs.String("download-endpoint", defaults.Download.Endpoint, "URL template for repository downloads (repo, file)")
	fs.String("download-auth-token", defaults.Download.AuthToken, "Bearer token for gated repositories (falls back to HF_TOKEN env var)")
	fs.String("hub-cache-dir", defaults.Hub.CacheDir, "External hub cache directory to inspect and purge")
	fs.String("log-level", defaults.LogLevel, "Log level (debug|info|warn|error)")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := v.BindPFlags(opts.Cmd.Flags()); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}
	registerAliases(v)

	v.SetEnvPrefix("TTSREGISTRY")
	replacer := strings.NewReplacer("-", "_", ".", "_", "__", "_")
	v.SetEnvKeyReplacer(replacer)
	// Bind against the real flag key: "download.auth_token" is an alias, and
	// viper resolves aliases before consulting env bindings, so a binding
	// stored under the alias name is never found.
	if err := v.BindEnv("download-auth-token", "TTSREGISTRY_AUTH_TOKEN", "HF_TOKEN"); err != nil {
		return Config{}, fmt.Errorf("bind auth env vars: %w", err)
	}
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("ttsregistry")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("paths.registry_path", c.Paths.RegistryPath)
	v.SetDefault("paths.models_dir", c.Paths.ModelsDir)
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.shutdown_timeout", c.Server.ShutdownTimeout)
	v.SetDefault("download.chunk_size_kb", c.Download.ChunkSizeKB)
	v.SetDefault("download.update_interval_ms", c.Download.UpdateIntervalMS)
	v.SetDefault("download.endpoint", c.Download.Endpoint)
	v.SetDefault("download.auth_token", c.Download.AuthToken)
	v.SetDefault("hub.cache_dir", c.Hub.CacheDir)
	v.SetDefault("log_level", c.LogLevel)
}

func registerAliases(v *viper.Viper) {
	v.RegisterAlias("paths.registry_path", "paths-registry-path")
	v.RegisterAlias("paths.models_dir", "paths-models-dir")
	v.RegisterAlias("server.listen_addr", "server-listen-addr")
	v.RegisterAlias("server.shutdown_timeout", "server-shutdown-timeout")
	v.RegisterAlias("download.chunk_size_kb", "download-chunk-size-kb")
	v.RegisterAlias("download.update_interval_ms", "download-update-interval-ms")
	v.RegisterAlias("download.endpoint", "download-endpoint")
	v.RegisterAlias("download.auth_token", "download-auth-token")
	v.RegisterAlias("hub.cache_dir", "hub-cache-dir")
	v.RegisterAlias("log_level", "log-level")
}
