package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/gpio-isp/internal/gpio"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gpio-isp.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
	assert.Equal(t, gpio.DefaultAssignment(), cfg.Assignment())
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, BackendSysfs, cfg.Backend)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
backend: cdev
chip: gpiochip4
rollback: true
gpio:
  clock: {id: 17}
  master_out: {id: 27, inverted: true}
  master_in: {id: 0}
command: "30 00 00 00"
interval: 250ms
mqtt:
  broker: tcp://broker.local:1883
  client_id: isp-bench
http:
  addr: ""
logger:
  level: debug
  format: json
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, BackendCdev, cfg.Backend)
	assert.Equal(t, "gpiochip4", cfg.Chip)
	assert.True(t, cfg.Rollback)
	assert.Len(t, cfg.Options(), 1)
	assert.Equal(t, 250*time.Millisecond, cfg.Interval)
	assert.Equal(t, "tcp://broker.local:1883", cfg.MQTT.Broker)
	assert.Equal(t, "", cfg.HTTP.Addr)
	assert.Equal(t, "json", cfg.Logger.Format)
	assert.Equal(t, "stderr", cfg.Logger.Output, "unset keys keep defaults")

	want := gpio.Assignment{
		gpio.Clock:     {ID: 17},
		gpio.MasterOut: {ID: 27, Polarity: gpio.Inverted},
		gpio.MasterIn:  {ID: 0},
	}
	assert.Equal(t, want, cfg.Assignment())
}

func TestLoadParseError(t *testing.T) {
	_, err := Load(writeConfig(t, "backend: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestLoadLeavesValidationToCaller(t *testing.T) {
	cfg, err := Load(writeConfig(t, "gpio:\n  clock: {id: -1}\n"))
	require.NoError(t, err, "an unset role may still be supplied by a flag")
	assert.Equal(t, -1, cfg.GPIO.Clock.ID)
	assert.Error(t, Validate(cfg))

	p, err := gpio.ParsePin("22")
	require.NoError(t, err)
	cfg.SetPin(gpio.Clock, p)
	assert.NoError(t, Validate(cfg))
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GPIOISP_BACKEND", "periph")
	t.Setenv("GPIOISP_SYSFS_ROOT", "/tmp/gpio")
	t.Setenv("GPIOISP_CHIP", "gpiochip1")
	t.Setenv("GPIOISP_MQTT_BROKER", "tcp://10.0.0.2:1883")
	t.Setenv("GPIOISP_HTTP_ADDR", ":9090")
	t.Setenv("GPIOISP_LOGGER_LEVEL", "warn")

	cfg, err := Load(writeConfig(t, "backend: sysfs\n"))
	require.NoError(t, err)

	assert.Equal(t, BackendPeriph, cfg.Backend, "env wins over file")
	assert.Equal(t, "/tmp/gpio", cfg.SysfsRoot)
	assert.Equal(t, "gpiochip1", cfg.Chip)
	assert.Equal(t, "tcp://10.0.0.2:1883", cfg.MQTT.Broker)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, "warn", cfg.Logger.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"unknown backend", func(c *Config) { c.Backend = "spidev" }, `backend "spidev"`},
		{"sysfs without root", func(c *Config) { c.SysfsRoot = "" }, "sysfs_root is required"},
		{"cdev without chip", func(c *Config) { c.Backend = BackendCdev; c.Chip = "" }, "chip is required"},
		{"unconfigured role", func(c *Config) { c.GPIO.MasterIn.ID = -1 }, "master_in pin not configured"},
		{"aliased pins", func(c *Config) { c.GPIO.Clock.ID = c.GPIO.MasterOut.ID }, "both assigned"},
		{"pin out of range", func(c *Config) { c.GPIO.Clock.ID = 300 }, "out of range"},
		{"bad command", func(c *Config) { c.Command = "AC 53" }, "command:"},
		{"zero interval", func(c *Config) { c.Interval = 0 }, "interval must be positive"},
		{"mqtt without client id", func(c *Config) { c.MQTT.Broker = "tcp://x:1883"; c.MQTT.ClientID = "" }, "client_id is required"},
		{"bad log format", func(c *Config) { c.Logger.Format = "xml" }, "logger.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateCollectsAll(t *testing.T) {
	cfg := Defaults()
	cfg.Backend = "nope"
	cfg.Interval = -time.Second
	err := Validate(cfg)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 2)
}

func TestSetPin(t *testing.T) {
	cfg := Defaults()
	cfg.SetPin(gpio.MasterIn, gpio.Pin{ID: 4, Polarity: gpio.Inverted})
	cfg.SetPin(gpio.Clock, gpio.Pin{ID: 2})

	a := cfg.Assignment()
	assert.Equal(t, gpio.Pin{ID: 4, Polarity: gpio.Inverted}, a[gpio.MasterIn])
	assert.Equal(t, gpio.Pin{ID: 2}, a[gpio.Clock])
	assert.NoError(t, a.Validate())
}
