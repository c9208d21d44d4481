// Package config loads vibectx settings from defaults, an optional config
// file, .env files and VIBECTX_ environment variables, in rising priority.
package config

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/mgomes/vibectx/store"
	"github.com/mgomes/vibectx/vibes"
)

const (
	AppName   = "vibectx"
	EnvPrefix = "VIBECTX"
)

type EngineConfig struct {
	StepQuota      int `json:"step_quota" mapstructure:"step_quota"`
	RecursionLimit int `json:"recursion_limit" mapstructure:"recursion_limit"`
}

type S3Config struct {
	Endpoint  string `json:"endpoint" mapstructure:"endpoint"`
	Region    string `json:"region" mapstructure:"region"`
	AccessKey string `json:"access_key" mapstructure:"access_key"`
	SecretKey string `json:"secret_key" mapstructure:"secret_key"`
	Bucket    string `json:"bucket" mapstructure:"bucket"`
	Prefix    string `json:"prefix" mapstructure:"prefix"`
	UseSSL    bool   `json:"use_ssl" mapstructure:"use_ssl"`
}

type StoreConfig struct {
	// Backend is one of memory, file, s3 or postgres.
	Backend string   `json:"backend" mapstructure:"backend"`
	Dir     string   `json:"dir" mapstructure:"dir"`
	DSN     string   `json:"dsn" mapstructure:"dsn"`
	S3      S3Config `json:"s3" mapstructure:"s3"`
}

type LogConfig struct {
	Level string `json:"level" mapstructure:"level"`
	// Format is text, json or logfmt.
	Format string `json:"format" mapstructure:"format"`
}

type Config struct {
	Engine             EngineConfig `json:"engine" mapstructure:"engine"`
	Store              StoreConfig  `json:"store" mapstructure:"store"`
	OriginCacheSize    int          `json:"origin_cache_size" mapstructure:"origin_cache_size"`
	HarnessConcurrency int          `json:"harness_concurrency" mapstructure:"harness_concurrency"`
	IgnoredOrigins     []string     `json:"ignored_origins" mapstructure:"ignored_origins"`
	Log                LogConfig    `json:"log" mapstructure:"log"`
}

func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			StepQuota:      50000,
			RecursionLimit: 64,
		},
		Store: StoreConfig{
			Backend: store.KindFile,
			Dir:     ".vibectx",
			S3:      S3Config{Region: "us-east-1", UseSSL: true},
		},
		OriginCacheSize:    store.DefaultOriginCacheSize,
		HarnessConcurrency: 4,
		IgnoredOrigins:     []string{},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadOptions points Load at explicit files. Empty fields fall back to
// vibectx.{yaml,toml,json} in the working directory and .env.
type LoadOptions struct {
	ConfigFile string
	EnvFiles   []string
}

// Load resolves the configuration and reports the config file used, if any.
func Load(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	// Missing .env files are fine.
	_ = godotenv.Load(opts.EnvFiles...)

	v := viper.New()
	defaults := DefaultConfig()
	v.SetDefault("engine.step_quota", defaults.Engine.StepQuota)
	v.SetDefault("engine.recursion_limit", defaults.Engine.RecursionLimit)
	v.SetDefault("store.backend", defaults.Store.Backend)
	v.SetDefault("store.dir", defaults.Store.Dir)
	v.SetDefault("store.dsn", defaults.Store.DSN)
	v.SetDefault("store.s3.endpoint", defaults.Store.S3.Endpoint)
	v.SetDefault("store.s3.region", defaults.Store.S3.Region)
	v.SetDefault("store.s3.access_key", defaults.Store.S3.AccessKey)
	v.SetDefault("store.s3.secret_key", defaults.Store.S3.SecretKey)
	v.SetDefault("store.s3.bucket", defaults.Store.S3.Bucket)
	v.SetDefault("store.s3.prefix", defaults.Store.S3.Prefix)
	v.SetDefault("store.s3.use_ssl", defaults.Store.S3.UseSSL)
	v.SetDefault("origin_cache_size", defaults.OriginCacheSize)
	v.SetDefault("harness_concurrency", defaults.HarnessConcurrency)
	v.SetDefault("ignored_origins", defaults.IgnoredOrigins)
	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.format", defaults.Log.Format)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	resolved := ""
	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, "", fmt.Errorf("read config %s: %w", opts.ConfigFile, err)
		}
		resolved = opts.ConfigFile
	} else {
		v.SetConfigName(AppName)
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, "", fmt.Errorf("read config: %w", err)
			}
		} else {
			resolved = v.ConfigFileUsed()
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return &cfg, resolved, nil
}

func (c *Config) Validate() error {
	switch strings.ToLower(c.Store.Backend) {
	case store.KindMemory, store.KindFile, store.KindS3, store.KindPostgres:
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}
	if c.Engine.StepQuota < 0 || c.Engine.RecursionLimit < 0 {
		return fmt.Errorf("config: engine limits must not be negative")
	}
	if c.HarnessConcurrency < 0 {
		return fmt.Errorf("config: harness concurrency must not be negative")
	}
	return nil
}

// VibesConfig returns the script engine limits.
func (c *Config) VibesConfig() vibes.Config {
	return vibes.Config{StepQuota: c.Engine.StepQuota, RecursionLimit: c.Engine.RecursionLimit}
}

func (c *Config) StoreConfig() store.Config {
	s3 := c.Store.S3
	return store.Config{
		Kind: c.Store.Backend,
		Dir:  c.Store.Dir,
		DSN:  c.Store.DSN,
		S3: store.S3Config{
			Endpoint:  s3.Endpoint,
			Region:    s3.Region,
			AccessKey: s3.AccessKey,
			SecretKey: s3.SecretKey,
			Bucket:    s3.Bucket,
			Prefix:    s3.Prefix,
			UseSSL:    s3.UseSSL,
		},
	}
}
