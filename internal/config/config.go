package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/dokzlo13/sunrise/internal/bulb"
	"github.com/dokzlo13/sunrise/internal/miio"
)

// Config represents the application configuration
type Config struct {
	Devices         []DeviceConfig `yaml:"devices"`
	Schedule        ScheduleConfig `yaml:"schedule"`
	Device          DeviceSettings `yaml:"device"`
	Database        DatabaseConfig `yaml:"database"`
	Ledger          LedgerConfig   `yaml:"ledger"`
	Log             LogConfig      `yaml:"log"`
	Status          StatusConfig   `yaml:"status"`
	ShutdownTimeout Duration       `yaml:"shutdown_timeout"` // Timeout for stopping the status server
}

// DeviceConfig describes one bulb
type DeviceConfig struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
	IP      string `yaml:"ip"` // Alias for address
	Token   string `yaml:"token"`
}

// ScheduleConfig contains the wake-up schedule
type ScheduleConfig struct {
	Duration    *Duration `yaml:"duration"`     // Total ramp duration (default: 10m, explicit 0s is kept)
	Steps       int       `yaml:"steps"`        // Number of brightness steps (default: 100)
	CurveScript string    `yaml:"curve_script"` // Optional Lua script defining brightness(step, steps)
}

// DeviceSettings contains settings shared by all bulbs
type DeviceSettings struct {
	Timeout      Duration `yaml:"timeout"`        // Per-request timeout (default: 5s)
	RateLimitRPS float64  `yaml:"rate_limit_rps"` // Max device commands per second, 0 = unlimited
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"` // Empty disables the run ledger
}

// LedgerConfig contains run ledger settings
type LedgerConfig struct {
	RetentionDays int `yaml:"retention_days"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level"`
	UseJSON bool   `yaml:"use_json"`
	Colors  bool   `yaml:"colors"`
}

// StatusConfig contains status server settings
type StatusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// Addr returns host:port for the status server
func (c *StatusConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// GetRetention returns the ledger retention as a duration
func (c *LedgerConfig) GetRetention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse parses configuration from YAML, applies defaults and validates it
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) setDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	// Schedule defaults match the classic 10 minute, 1% per step sunrise
	if cfg.Schedule.Duration == nil {
		d := Duration(600 * time.Second)
		cfg.Schedule.Duration = &d
	}
	if cfg.Schedule.Steps == 0 {
		cfg.Schedule.Steps = 100
	}

	// Device defaults
	if cfg.Device.Timeout == 0 {
		cfg.Device.Timeout = Duration(5 * time.Second)
	}

	for i := range cfg.Devices {
		d := &cfg.Devices[i]
		if d.Address == "" {
			d.Address = d.IP
		}
		d.Address = strings.TrimSpace(d.Address)
	}

	// Ledger defaults
	if cfg.Ledger.RetentionDays == 0 {
		cfg.Ledger.RetentionDays = 30
	}

	// Status server defaults
	if cfg.Status.Host == "" {
		cfg.Status.Host = "127.0.0.1"
	}
	if cfg.Status.Port == 0 {
		cfg.Status.Port = 9090
	}

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}
}

// Validate checks the configuration for errors that would make a run impossible.
// Duplicate device addresses are allowed but logged.
func (cfg *Config) Validate() error {
	var errs []error

	if len(cfg.Devices) == 0 {
		errs = append(errs, errors.New("devices: at least one device is required"))
	}

	seen := make(map[string]int)
	for i, d := range cfg.Devices {
		if d.Address == "" {
			errs = append(errs, fmt.Errorf("devices[%d]: address is required", i))
			continue
		}
		if _, err := miio.ParseToken(d.Token); err != nil {
			errs = append(errs, fmt.Errorf("devices[%d] (%s): %w", i, d.Address, err))
		}
		if prev, ok := seen[d.Address]; ok {
			log.Warn().
				Str("address", d.Address).
				Int("first", prev).
				Int("duplicate", i).
				Msg("Device address configured more than once")
		} else {
			seen[d.Address] = i
		}
	}

	if cfg.Schedule.Steps < 1 {
		errs = append(errs, fmt.Errorf("schedule.steps: must be at least 1, got %d", cfg.Schedule.Steps))
	}
	if cfg.Schedule.Duration != nil && *cfg.Schedule.Duration < 0 {
		errs = append(errs, fmt.Errorf("schedule.duration: must not be negative, got %s", cfg.Schedule.Duration.Duration()))
	}
	if cfg.Device.RateLimitRPS < 0 {
		errs = append(errs, fmt.Errorf("device.rate_limit_rps: must not be negative"))
	}

	return errors.Join(errs...)
}

// BulbDevices converts configured devices to bulb descriptors
func (cfg *Config) BulbDevices() []bulb.Device {
	devices := make([]bulb.Device, 0, len(cfg.Devices))
	for _, d := range cfg.Devices {
		devices = append(devices, bulb.Device{
			Name:    d.Name,
			Address: d.Address,
			Token:   d.Token,
		})
	}
	return devices
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
