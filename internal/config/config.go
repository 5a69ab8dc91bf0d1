package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type UserConfig struct {
	ID     string `mapstructure:"id"`
	Name   string `mapstructure:"name"`
	Avatar string `mapstructure:"avatar"`
}

type BackendConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type SignalConfig struct {
	URL          string        `mapstructure:"url"`
	PingPeriod   time.Duration `mapstructure:"ping_period"`
	ReadLimit    int64         `mapstructure:"read_limit"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	SendBuffer   int           `mapstructure:"send_buffer"`
}

type CallConfig struct {
	RingTimeout        time.Duration `mapstructure:"ring_timeout"`
	RenegotiateTimeout time.Duration `mapstructure:"renegotiate_timeout"`
	MediaTimeout       time.Duration `mapstructure:"media_timeout"`
}

type MediaConfig struct {
	Width            int     `mapstructure:"width"`
	Height           int     `mapstructure:"height"`
	FrameRate        float64 `mapstructure:"frame_rate"`
	VideoBitRate     int     `mapstructure:"video_bit_rate"`
	EchoCancellation bool    `mapstructure:"echo_cancellation"`
	NoiseSuppression bool    `mapstructure:"noise_suppression"`
	AutoGainControl  bool    `mapstructure:"auto_gain_control"`
}

type HistoryConfig struct {
	Path string `mapstructure:"path"`
}

type RateConfig struct {
	Limit float64 `mapstructure:"limit"`
	Burst int     `mapstructure:"burst"`
}

type Config struct {
	Mode           string        `mapstructure:"mode"`
	Port           int           `mapstructure:"port"`
	StaticPath     string        `mapstructure:"static_path"`
	Secret         string        `mapstructure:"secret"`
	LogLevel       string        `mapstructure:"log_level"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	ICEServers     []string      `mapstructure:"ice_servers"`
	User           UserConfig    `mapstructure:"user"`
	Backend        BackendConfig `mapstructure:"backend"`
	Signal         SignalConfig  `mapstructure:"signal"`
	Call           CallConfig    `mapstructure:"call"`
	Media          MediaConfig   `mapstructure:"media"`
	History        HistoryConfig `mapstructure:"history"`
	Rate           RateConfig    `mapstructure:"rate"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("secret", "change-me")
	v.SetDefault("log_level", "info")
	v.SetDefault("allowed_origins", []string{"http://localhost:8080"})
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})

	v.SetDefault("user.id", "")
	v.SetDefault("user.name", "")
	v.SetDefault("user.avatar", "")

	v.SetDefault("backend.base_url", "http://localhost:3000/api")
	v.SetDefault("backend.token", "")
	v.SetDefault("backend.timeout", "10s")

	v.SetDefault("signal.url", "ws://localhost:3000/ws")
	v.SetDefault("signal.ping_period", "54s")
	v.SetDefault("signal.read_limit", 65536)
	v.SetDefault("signal.write_timeout", "10s")
	v.SetDefault("signal.send_buffer", 64)

	v.SetDefault("call.ring_timeout", "20s")
	v.SetDefault("call.renegotiate_timeout", "10s")
	v.SetDefault("call.media_timeout", "10s")

	v.SetDefault("media.width", 1280)
	v.SetDefault("media.height", 720)
	v.SetDefault("media.frame_rate", 30)
	v.SetDefault("media.video_bit_rate", 1_000_000)
	v.SetDefault("media.echo_cancellation", true)
	v.SetDefault("media.noise_suppression", true)
	v.SetDefault("media.auto_gain_control", true)

	v.SetDefault("history.path", "data/calls.db")

	v.SetDefault("rate.limit", 10)
	v.SetDefault("rate.burst", 20)
}

// Load reads config/config.<CONFIG_ENV>.yaml, then .env and VOICE_* overrides.
func Load() (*Config, error) {
	v, _, err := newViper()
	if err != nil {
		return nil, err
	}
	return decode(v)
}

// Watch reloads the file on change and applies the new log level.
func Watch(onChange func(*Config)) error {
	v, found, err := newViper()
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := decode(v)
		if err != nil {
			log.Error().Str("module", "config").Str("file", e.Name).Err(err).Msg("config reload failed")
			return
		}
		ApplyLogLevel(cfg.LogLevel)
		log.Info().Str("module", "config").Str("file", e.Name).Str("op", e.Op.String()).Msg("config reloaded")
		if onChange != nil {
			onChange(cfg)
		}
	})
	v.WatchConfig()
	return nil
}

func newViper() (*viper.Viper, bool, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Str("module", "config").Err(err).Msg(".env not loaded")
	}

	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	if p := os.Getenv("CONFIG_FILE"); p != "" {
		fileName = p
	}
	v.SetConfigFile(fileName)

	setDefaults(v)
	v.SetEnvPrefix("VOICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, false, fmt.Errorf("read config %s: %w", fileName, err)
		}
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
		return v, false, nil
	}
	log.Info().Str("module", "config").Str("file", fileName).Msg("config loaded")
	return v, true, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("config: invalid port %d", c.Port)
	case c.Call.RingTimeout <= 0:
		return fmt.Errorf("config: call.ring_timeout must be positive")
	case c.Signal.SendBuffer <= 0:
		return fmt.Errorf("config: signal.send_buffer must be positive")
	}
	return nil
}

// ApplyLogLevel sets the global zerolog level; unknown names keep info.
func ApplyLogLevel(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
