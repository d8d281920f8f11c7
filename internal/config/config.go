package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultSerialPort     = "/dev/ttyACM0"
	DefaultSerialBaud     = 115200
	DefaultHTTPPort       = 8080
	DefaultWSPort         = 3000
	DefaultTCPPort        = 5000
	DefaultPushBufferSize = 1000
	DefaultPushBufferFile = "push-buffer.json"
	DefaultCommandTimeout = 30 * time.Second
)

// Config is the runtime configuration of the bridge, resolved from the
// process environment.
type Config struct {
	SerialPort     string
	SerialBaud     int
	HTTPPort       int
	WSPort         int
	TCPPort        int
	PushBufferSize int
	PushBufferFile string
	CommandTimeout time.Duration
	LogLevel       string
	Debug          bool

	Weather WeatherConfig
}

// WeatherConfig configures the periodic weather-report producer.
type WeatherConfig struct {
	Enabled  bool
	BaseURL  string
	Token    string
	Interval time.Duration
	Channel  int
	// Entities maps logical sensor keys (temperature, humidity, ...) to
	// external entity identifiers.
	Entities map[string]string
}

// SensorKeys lists the logical sensor keys the producer understands.
var SensorKeys = []string{
	"temperature",
	"humidity",
	"wind_speed",
	"wind_gust",
	"wind_bearing",
	"pressure",
	"uv",
	"rain_rate",
	"rain_daily",
	"solar_radiation",
	"dew_point",
}

func Default() Config {
	return Config{
		SerialPort:     DefaultSerialPort,
		SerialBaud:     DefaultSerialBaud,
		HTTPPort:       DefaultHTTPPort,
		WSPort:         DefaultWSPort,
		TCPPort:        DefaultTCPPort,
		PushBufferSize: DefaultPushBufferSize,
		PushBufferFile: DefaultPushBufferFile,
		CommandTimeout: DefaultCommandTimeout,
		LogLevel:       "info",
		Weather: WeatherConfig{
			Interval: 15 * time.Minute,
			Channel:  0,
			Entities: map[string]string{},
		},
	}
}

// FromEnv resolves the configuration from environment variables, applying
// defaults for everything unset.
func FromEnv() (Config, error) {
	cfg := Default()

	if v := os.Getenv("SERIAL_PORT"); v != "" {
		cfg.SerialPort = v
	}
	var err error
	if cfg.SerialBaud, err = envInt("SERIAL_BAUD", cfg.SerialBaud); err != nil {
		return Config{}, err
	}
	if cfg.HTTPPort, err = envInt("HTTP_PORT", cfg.HTTPPort); err != nil {
		return Config{}, err
	}
	if cfg.WSPort, err = envInt("WS_PORT", cfg.WSPort); err != nil {
		return Config{}, err
	}
	if cfg.TCPPort, err = envInt("TCP_PORT", cfg.TCPPort); err != nil {
		return Config{}, err
	}
	if cfg.PushBufferSize, err = envInt("PUSH_BUFFER_SIZE", cfg.PushBufferSize); err != nil {
		return Config{}, err
	}
	if v := os.Getenv("PUSH_BUFFER_FILE"); v != "" {
		cfg.PushBufferFile = v
	}
	timeoutMS, err := envInt("COMMAND_TIMEOUT_MS", int(cfg.CommandTimeout/time.Millisecond))
	if err != nil {
		return Config{}, err
	}
	cfg.CommandTimeout = time.Duration(timeoutMS) * time.Millisecond
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	cfg.Debug = envBool("DEBUG")

	cfg.Weather, err = weatherFromEnv(cfg.Weather)
	if err != nil {
		return Config{}, err
	}

	cfg.FillMissingDefaults()

	return cfg, nil
}

func weatherFromEnv(cfg WeatherConfig) (WeatherConfig, error) {
	cfg.Enabled = envBool("WEATHER_ENABLED")
	cfg.BaseURL = strings.TrimRight(os.Getenv("WEATHER_BASE_URL"), "/")
	cfg.Token = os.Getenv("WEATHER_TOKEN")

	intervalMin, err := envInt("WEATHER_INTERVAL_MIN", int(cfg.Interval/time.Minute))
	if err != nil {
		return WeatherConfig{}, err
	}
	cfg.Interval = time.Duration(intervalMin) * time.Minute
	if cfg.Channel, err = envInt("WEATHER_CHANNEL", cfg.Channel); err != nil {
		return WeatherConfig{}, err
	}

	for _, key := range SensorKeys {
		envName := "WEATHER_ENTITY_" + strings.ToUpper(key)
		if v := os.Getenv(envName); v != "" {
			cfg.Entities[key] = v
		}
	}

	return cfg, nil
}

func (c *Config) FillMissingDefaults() {
	if c.SerialBaud <= 0 {
		c.SerialBaud = DefaultSerialBaud
	}
	if c.PushBufferSize <= 0 {
		c.PushBufferSize = DefaultPushBufferSize
	}
	if c.PushBufferFile == "" {
		c.PushBufferFile = DefaultPushBufferFile
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = DefaultCommandTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Weather.Interval <= 0 {
		c.Weather.Interval = 15 * time.Minute
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.SerialPort) == "" {
		return errors.New("serial port is required")
	}
	if c.SerialBaud <= 0 {
		return errors.New("serial baud must be positive")
	}
	for name, port := range map[string]int{
		"HTTP_PORT": c.HTTPPort,
		"WS_PORT":   c.WSPort,
		"TCP_PORT":  c.TCPPort,
	} {
		if port <= 0 || port > 65535 {
			return fmt.Errorf("%s out of range: %d", name, port)
		}
	}

	return nil
}

// Validate reports whether the weather producer can run. A failure disables
// the producer only, never the bridge.
func (c WeatherConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if strings.TrimSpace(c.BaseURL) == "" {
		return errors.New("weather base URL is required")
	}
	if len(c.Entities) == 0 {
		return errors.New("at least one weather entity must be configured")
	}
	if c.Channel < 0 || c.Channel > 255 {
		return fmt.Errorf("weather channel out of range: %d", c.Channel)
	}

	return nil
}

func envInt(name string, def int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}

	return n, nil
}

func envBool(name string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
