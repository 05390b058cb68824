// Package config loads the YAML configuration of the objbridge command.
//
//	client:
//	  addr: 127.0.0.1:4827
//	  connect_timeout: 500ms
//	  codec: json
//	server:
//	  addr: :4827
//	  rate_limit: 200
//	log:
//	  level: debug
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"objbridge/bridge"
	"objbridge/codec"
	"objbridge/proxy"
	"objbridge/server"
)

type Config struct {
	Client ClientConfig `yaml:"client"`
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
}

type ClientConfig struct {
	Addr             string        `yaml:"addr"`
	ConnectTimeout   time.Duration `yaml:"connect_timeout"`
	CallTimeout      time.Duration `yaml:"call_timeout"`
	ReleaseTimeout   time.Duration `yaml:"release_timeout"`
	ConvertCamelCase bool          `yaml:"convert_camel_case"`
	Codec            string        `yaml:"codec"`
	ExpectedVersion  string        `yaml:"expected_version"`
	Strict           bool          `yaml:"strict"`
	Debug            bool          `yaml:"debug"`
}

type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	Version        string        `yaml:"version"`
	RateLimit      float64       `yaml:"rate_limit"`
	Burst          int           `yaml:"burst"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	LogRequests    bool          `yaml:"log_requests"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Client: ClientConfig{
			Addr:             fmt.Sprintf("127.0.0.1:%d", bridge.DefaultPort),
			ConnectTimeout:   bridge.DefaultConnectTimeout,
			ReleaseTimeout:   proxy.DefaultReleaseTimeout,
			ConvertCamelCase: true,
			Codec:            "json",
			ExpectedVersion:  bridge.ExpectedVersion,
		},
		Server: ServerConfig{
			Addr:    fmt.Sprintf(":%d", bridge.DefaultPort),
			Version: server.DefaultVersion,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path over the defaults. Keys absent from the file keep their default.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values that cannot be caught by decoding.
func (c *Config) Validate() error {
	if _, err := codec.ParseCodecType(c.Client.Codec); err != nil {
		return err
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	if c.Server.RateLimit < 0 || c.Server.Burst < 0 {
		return fmt.Errorf("server rate limit must not be negative")
	}
	return nil
}

// ClientOptions converts the client section to session options.
func (c *Config) ClientOptions(logger *zap.Logger) ([]bridge.Option, error) {
	ct, err := codec.ParseCodecType(c.Client.Codec)
	if err != nil {
		return nil, err
	}
	return []bridge.Option{
		bridge.WithLogger(logger),
		bridge.WithConnectTimeout(c.Client.ConnectTimeout),
		bridge.WithCallTimeout(c.Client.CallTimeout),
		bridge.WithReleaseTimeout(c.Client.ReleaseTimeout),
		bridge.WithConvertCamelCase(c.Client.ConvertCamelCase),
		bridge.WithCodec(ct),
		bridge.WithStrictOverloads(c.Client.Strict),
		bridge.WithDebug(c.Client.Debug),
		bridge.WithExpectedVersion(c.Client.ExpectedVersion),
	}, nil
}

// ServerOptions converts the server section to server options.
func (c *Config) ServerOptions(logger *zap.Logger) []server.Option {
	opts := []server.Option{
		server.WithLogger(logger),
		server.WithVersion(c.Server.Version),
	}
	if c.Server.LogRequests {
		opts = append(opts, server.WithRequestLogging())
	}
	if c.Server.RequestTimeout > 0 {
		opts = append(opts, server.WithRequestTimeout(c.Server.RequestTimeout))
	}
	if c.Server.RateLimit > 0 {
		burst := c.Server.Burst
		if burst == 0 {
			burst = int(c.Server.RateLimit)
		}
		opts = append(opts, server.WithRateLimit(c.Server.RateLimit, burst))
	}
	return opts
}

// BuildLogger builds the process logger from the log section.
func (c *Config) BuildLogger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	return zc.Build()
}
