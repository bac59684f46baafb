// Package config loads dapbridge settings from defaults, an optional YAML
// file and DAPBRIDGE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// ListenStdio serves a single session over stdin and stdout.
const ListenStdio = "stdio"

// Engine kinds.
const (
	EngineReplay = "replay"
	EngineLua    = "lua"
)

// Config keys.
const (
	KeyListen      = "listen"
	KeyLogLevel    = "log.level"
	KeyLogFormat   = "log.format"
	KeyMetricsAddr = "metrics.addr"
	KeyTraceStdout = "trace.stdout"
	KeyEngineKind  = "engine.kind"
	KeyEnginePath  = "engine.path"
)

const envPrefix = "DAPBRIDGE"

// Errors returned by Validate.
var (
	ErrUnknownEngine    = errors.New("unknown engine kind")
	ErrUnknownLogFormat = errors.New("unknown log format")
	ErrTraceOnStdio     = errors.New("trace.stdout cannot be used with the stdio transport")
)

// Config holds dapbridge settings.
type Config struct {
	Listen  string        `mapstructure:"listen"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Trace   TraceConfig   `mapstructure:"trace"`
	Engine  EngineConfig  `mapstructure:"engine"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig configures the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// TraceConfig configures span export.
type TraceConfig struct {
	Stdout bool `mapstructure:"stdout"`
}

// EngineConfig selects the debugger back end.
type EngineConfig struct {
	Kind string `mapstructure:"kind"`
	Path string `mapstructure:"path"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Listen: ListenStdio,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Engine: EngineConfig{
			Kind: EngineReplay,
		},
	}
}

// New returns a viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	def := Default()

	v := viper.New()
	v.SetDefault(KeyListen, def.Listen)
	v.SetDefault(KeyLogLevel, def.Log.Level)
	v.SetDefault(KeyLogFormat, def.Log.Format)
	v.SetDefault(KeyMetricsAddr, def.Metrics.Addr)
	v.SetDefault(KeyTraceStdout, def.Trace.Stdout)
	v.SetDefault(KeyEngineKind, def.Engine.Kind)
	v.SetDefault(KeyEnginePath, def.Engine.Path)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads settings into cfg. A non-empty path names a YAML file that must
// exist; otherwise dapbridge.yaml is looked up in the working directory and
// its absence is not an error.
func Load(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("dapbridge")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks enumerated settings.
func (c Config) Validate() error {
	switch c.Engine.Kind {
	case EngineReplay, EngineLua:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEngine, c.Engine.Kind)
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: %q", ErrUnknownLogFormat, c.Log.Format)
	}

	if c.Trace.Stdout && c.UsesStdio() {
		return ErrTraceOnStdio
	}
	return nil
}

// UsesStdio reports whether the adapter talks DAP over stdin and stdout.
func (c Config) UsesStdio() bool {
	return c.Listen == "" || c.Listen == ListenStdio
}
