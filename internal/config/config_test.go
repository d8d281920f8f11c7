package config

import (
	"testing"
	"time"
)

func TestDefaultValues(t *testing.T) {
	cfg := Default()

	if cfg.SerialPort != "/dev/ttyACM0" {
		t.Fatalf("unexpected serial port %q", cfg.SerialPort)
	}
	if cfg.SerialBaud != 115200 {
		t.Fatalf("unexpected baud %d", cfg.SerialBaud)
	}
	if cfg.WSPort != 3000 || cfg.TCPPort != 5000 || cfg.HTTPPort != 8080 {
		t.Fatalf("unexpected ports: ws=%d tcp=%d http=%d", cfg.WSPort, cfg.TCPPort, cfg.HTTPPort)
	}
	if cfg.PushBufferSize != 1000 {
		t.Fatalf("unexpected push buffer size %d", cfg.PushBufferSize)
	}
	if cfg.CommandTimeout != 30*time.Second {
		t.Fatalf("unexpected command timeout %v", cfg.CommandTimeout)
	}
	if cfg.Weather.Interval != 15*time.Minute {
		t.Fatalf("unexpected weather interval %v", cfg.Weather.Interval)
	}
	if cfg.Weather.Enabled {
		t.Fatal("weather must be disabled by default")
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("SERIAL_PORT", "/dev/ttyUSB1")
	t.Setenv("SERIAL_BAUD", "921600")
	t.Setenv("WS_PORT", "3001")
	t.Setenv("TCP_PORT", "5001")
	t.Setenv("PUSH_BUFFER_SIZE", "50")
	t.Setenv("PUSH_BUFFER_FILE", "/tmp/pushes.json")
	t.Setenv("COMMAND_TIMEOUT_MS", "15000")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DEBUG", "true")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.SerialPort != "/dev/ttyUSB1" {
		t.Fatalf("unexpected serial port %q", cfg.SerialPort)
	}
	if cfg.SerialBaud != 921600 {
		t.Fatalf("unexpected baud %d", cfg.SerialBaud)
	}
	if cfg.WSPort != 3001 || cfg.TCPPort != 5001 {
		t.Fatalf("unexpected ports: ws=%d tcp=%d", cfg.WSPort, cfg.TCPPort)
	}
	if cfg.PushBufferSize != 50 {
		t.Fatalf("unexpected push buffer size %d", cfg.PushBufferSize)
	}
	if cfg.PushBufferFile != "/tmp/pushes.json" {
		t.Fatalf("unexpected push buffer file %q", cfg.PushBufferFile)
	}
	if cfg.CommandTimeout != 15*time.Second {
		t.Fatalf("unexpected command timeout %v", cfg.CommandTimeout)
	}
	if cfg.LogLevel != "debug" || !cfg.Debug {
		t.Fatalf("unexpected logging config: level=%q debug=%v", cfg.LogLevel, cfg.Debug)
	}
}

func TestFromEnvWeather(t *testing.T) {
	t.Setenv("WEATHER_ENABLED", "true")
	t.Setenv("WEATHER_BASE_URL", "http://ha.local:8123/")
	t.Setenv("WEATHER_TOKEN", "token-123")
	t.Setenv("WEATHER_INTERVAL_MIN", "30")
	t.Setenv("WEATHER_CHANNEL", "2")
	t.Setenv("WEATHER_ENTITY_TEMPERATURE", "sensor.outdoor_temp")
	t.Setenv("WEATHER_ENTITY_WIND_SPEED", "sensor.wind")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	w := cfg.Weather
	if !w.Enabled {
		t.Fatal("expected weather enabled")
	}
	if w.BaseURL != "http://ha.local:8123" {
		t.Fatalf("expected trailing slash trimmed, got %q", w.BaseURL)
	}
	if w.Token != "token-123" {
		t.Fatalf("unexpected token %q", w.Token)
	}
	if w.Interval != 30*time.Minute {
		t.Fatalf("unexpected interval %v", w.Interval)
	}
	if w.Channel != 2 {
		t.Fatalf("unexpected channel %d", w.Channel)
	}
	if w.Entities["temperature"] != "sensor.outdoor_temp" {
		t.Fatalf("unexpected temperature entity %q", w.Entities["temperature"])
	}
	if w.Entities["wind_speed"] != "sensor.wind" {
		t.Fatalf("unexpected wind entity %q", w.Entities["wind_speed"])
	}
	if _, ok := w.Entities["humidity"]; ok {
		t.Fatal("unset entity must not appear")
	}
}

func TestFromEnvRejectsBadInt(t *testing.T) {
	t.Setenv("WS_PORT", "not-a-number")

	if _, err := FromEnv(); err == nil {
		t.Fatal("expected error for unparseable port")
	}
}

func TestValidatePortRange(t *testing.T) {
	cfg := Default()
	cfg.TCPPort = 70000

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for out-of-range port")
	}
}

func TestValidateRequiresSerialPort(t *testing.T) {
	cfg := Default()
	cfg.SerialPort = "  "

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty serial port")
	}
}

func TestWeatherValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     WeatherConfig
		wantErr bool
	}{
		{name: "disabled passes", cfg: WeatherConfig{}, wantErr: false},
		{
			name:    "enabled without base url",
			cfg:     WeatherConfig{Enabled: true, Entities: map[string]string{"temperature": "x"}},
			wantErr: true,
		},
		{
			name:    "enabled without entities",
			cfg:     WeatherConfig{Enabled: true, BaseURL: "http://ha.local"},
			wantErr: true,
		},
		{
			name: "channel out of range",
			cfg: WeatherConfig{
				Enabled:  true,
				BaseURL:  "http://ha.local",
				Channel:  300,
				Entities: map[string]string{"temperature": "x"},
			},
			wantErr: true,
		},
		{
			name: "valid",
			cfg: WeatherConfig{
				Enabled:  true,
				BaseURL:  "http://ha.local",
				Channel:  1,
				Entities: map[string]string{"temperature": "x"},
			},
			wantErr: false,
		},
	}

	for _, tc := range tests {
		err := tc.cfg.Validate()
		if tc.wantErr && err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		if !tc.wantErr && err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
	}
}

func TestFillMissingDefaults(t *testing.T) {
	cfg := Config{}
	cfg.FillMissingDefaults()

	if cfg.SerialBaud != DefaultSerialBaud {
		t.Fatalf("unexpected baud %d", cfg.SerialBaud)
	}
	if cfg.PushBufferSize != DefaultPushBufferSize {
		t.Fatalf("unexpected buffer size %d", cfg.PushBufferSize)
	}
	if cfg.CommandTimeout != DefaultCommandTimeout {
		t.Fatalf("unexpected timeout %v", cfg.CommandTimeout)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("unexpected log level %q", cfg.LogLevel)
	}
}
