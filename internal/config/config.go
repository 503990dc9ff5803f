// Package config loads the programmer configuration from YAML with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/gpio-isp/internal/gpio"
	"github.com/sweeney/gpio-isp/internal/isp"
	"github.com/sweeney/gpio-isp/internal/sysfs"
)

// Backend names.
const (
	BackendSysfs  = "sysfs"
	BackendCdev   = "cdev"
	BackendPeriph = "periph"
)

// Config is the root configuration.
type Config struct {
	Backend   string        `yaml:"backend"`
	SysfsRoot string        `yaml:"sysfs_root"`
	Chip      string        `yaml:"chip"`
	Rollback  bool          `yaml:"rollback"`
	GPIO      PinsConfig    `yaml:"gpio"`
	Command   string        `yaml:"command"`
	Interval  time.Duration `yaml:"interval"`
	MQTT      MQTTConfig    `yaml:"mqtt"`
	HTTP      HTTPConfig    `yaml:"http"`
	Logger    LoggerConfig  `yaml:"logger"`
}

// PinConfig is one line. An ID of -1 leaves the role unconfigured.
type PinConfig struct {
	ID       int  `yaml:"id"`
	Inverted bool `yaml:"inverted"`
}

// PinsConfig assigns a line to each transport role.
type PinsConfig struct {
	Clock     PinConfig `yaml:"clock"`
	MasterOut PinConfig `yaml:"master_out"`
	MasterIn  PinConfig `yaml:"master_in"`
}

// MQTTConfig configures publishing. An empty broker disables it.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
}

// HTTPConfig configures the status server. An empty address disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// LoggerConfig configures the slog logger.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
	Output string `yaml:"output"` // stdout, stderr, or a file path
}

// Defaults returns the configuration used when no file is present.
func Defaults() *Config {
	return &Config{
		Backend:   BackendSysfs,
		SysfsRoot: sysfs.DefaultRoot,
		Chip:      "gpiochip0",
		GPIO: PinsConfig{
			Clock:     PinConfig{ID: gpio.DefaultClock},
			MasterOut: PinConfig{ID: gpio.DefaultMasterOut},
			MasterIn:  PinConfig{ID: gpio.DefaultMasterIn},
		},
		Command:  isp.ProgrammingEnable().String(),
		Interval: 5 * time.Second,
		MQTT: MQTTConfig{
			ClientID: "gpio-isp",
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load reads a YAML config file and applies env var overrides. A missing
// file is not an error; the defaults are used. The result is not validated:
// callers apply their own overrides first and then call Validate.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	ApplyEnvOverrides(cfg)
	return cfg, nil
}

// ApplyEnvOverrides maps GPIOISP_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GPIOISP_BACKEND"); v != "" {
		cfg.Backend = v
	}
	if v := os.Getenv("GPIOISP_SYSFS_ROOT"); v != "" {
		cfg.SysfsRoot = v
	}
	if v := os.Getenv("GPIOISP_CHIP"); v != "" {
		cfg.Chip = v
	}
	if v := os.Getenv("GPIOISP_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
	}
	if v := os.Getenv("GPIOISP_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("GPIOISP_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
}

// Assignment converts the gpio section. Roles with a negative ID are left
// out, so the result fails gpio.Assignment.Validate.
func (c *Config) Assignment() gpio.Assignment {
	a := make(gpio.Assignment, len(gpio.Roles))
	for _, r := range []struct {
		role gpio.Role
		pin  PinConfig
	}{
		{gpio.Clock, c.GPIO.Clock},
		{gpio.MasterOut, c.GPIO.MasterOut},
		{gpio.MasterIn, c.GPIO.MasterIn},
	} {
		if r.pin.ID < 0 {
			continue
		}
		p := gpio.Pin{ID: r.pin.ID}
		if r.pin.Inverted {
			p.Polarity = gpio.Inverted
		}
		a[r.role] = p
	}
	return a
}

// SetPin stores p as the line for role.
func (c *Config) SetPin(role gpio.Role, p gpio.Pin) {
	pc := PinConfig{ID: p.ID, Inverted: p.Polarity == gpio.Inverted}
	switch role {
	case gpio.Clock:
		c.GPIO.Clock = pc
	case gpio.MasterOut:
		c.GPIO.MasterOut = pc
	case gpio.MasterIn:
		c.GPIO.MasterIn = pc
	}
}

// Options returns the backend options implied by c.
func (c *Config) Options() []gpio.Option {
	var opts []gpio.Option
	if c.Rollback {
		opts = append(opts, gpio.WithRollback())
	}
	return opts
}

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg and returns a *ValidationError listing every problem.
func Validate(cfg *Config) error {
	ve := &ValidationError{}

	switch cfg.Backend {
	case BackendSysfs:
		if cfg.SysfsRoot == "" {
			ve.Add("sysfs_root is required for the sysfs backend")
		}
	case BackendCdev:
		if cfg.Chip == "" {
			ve.Add("chip is required for the cdev backend")
		}
	case BackendPeriph:
	default:
		ve.Add("backend %q: must be one of %s, %s, %s", cfg.Backend, BackendSysfs, BackendCdev, BackendPeriph)
	}

	if err := cfg.Assignment().Validate(); err != nil {
		ve.Add("gpio: %v", err)
	}

	if _, err := isp.ParseCommand(cfg.Command); err != nil {
		ve.Add("command: %v", err)
	}
	if cfg.Interval <= 0 {
		ve.Add("interval must be positive, got %s", cfg.Interval)
	}
	if cfg.MQTT.Broker != "" && cfg.MQTT.ClientID == "" {
		ve.Add("mqtt.client_id is required when mqtt.broker is set")
	}

	switch strings.ToLower(cfg.Logger.Format) {
	case "", "text", "json":
	default:
		ve.Add("logger.format %q: must be text or json", cfg.Logger.Format)
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}
