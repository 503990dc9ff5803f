package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/sweeney/gpio-isp/internal/bitbang"
	"github.com/sweeney/gpio-isp/internal/config"
	"github.com/sweeney/gpio-isp/internal/gpio"
	"github.com/sweeney/gpio-isp/internal/logger"
)

// controllerFactory builds the pin controller selected by cfg.
type controllerFactory func(cfg *config.Config, log *slog.Logger) (gpio.Controller, error)

// app carries the flag values and the state resolved before a subcommand
// runs.
type app struct {
	configPath string
	backend    string
	clock      string
	mosi       string
	miso       string
	logLevel   string

	cfg      *config.Config
	log      *slog.Logger
	closeLog func() error

	newController controllerFactory
}

func newRootCmd(factory controllerFactory) *cobra.Command {
	a := &app{newController: factory}

	root := &cobra.Command{
		Use:   "gpio-isp",
		Short: "AVR in-system programming over bit-banged GPIO",
		Long: `Drive an AVR target's serial programming interface from three GPIO lines:
a clock, a master-out data line and a master-in data line.

Examples:
  gpio-isp cmd AC 53 00 00                 # programming enable
  gpio-isp signature --backend cdev        # read the device signature
  gpio-isp fuses --clock 11 --mosi 10 --miso 9
  gpio-isp run --config /etc/gpio-isp.yaml # poll and publish to MQTT`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.closeLog != nil {
				return a.closeLog()
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "YAML config file")
	pf.StringVar(&a.backend, "backend", config.BackendSysfs, "GPIO backend: sysfs, cdev or periph")
	pf.StringVar(&a.clock, "clock", "", `clock pin, "~" prefix for inverted`)
	pf.StringVar(&a.mosi, "mosi", "", `master-out pin, "~" prefix for inverted`)
	pf.StringVar(&a.miso, "miso", "", `master-in pin, "~" prefix for inverted`)
	pf.StringVar(&a.logLevel, "log-level", "info", "debug, info, warn or error")

	root.AddCommand(
		newCmdCmd(a),
		newSignatureCmd(a),
		newFusesCmd(a),
		newReadCmd(a),
		newEraseCmd(a),
		newPinsCmd(a),
		newRunCmd(a),
	)
	return root
}

// setup loads the config file, applies flags given on the command line,
// validates the result and builds the logger.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("backend") {
		cfg.Backend = a.backend
	}
	for _, f := range []struct {
		name  string
		role  gpio.Role
		value string
	}{
		{"clock", gpio.Clock, a.clock},
		{"mosi", gpio.MasterOut, a.mosi},
		{"miso", gpio.MasterIn, a.miso},
	} {
		if !flags.Changed(f.name) {
			continue
		}
		p, err := gpio.ParsePin(f.value)
		if err != nil {
			return fmt.Errorf("--%s: %w", f.name, err)
		}
		cfg.SetPin(f.role, p)
	}
	if flags.Changed("log-level") {
		cfg.Logger.Level = a.logLevel
	}

	if err := config.Validate(cfg); err != nil {
		return err
	}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	a.cfg = cfg
	a.log = log
	a.closeLog = closeLog
	return nil
}

// withTransport opens a transport over the configured backend, runs fn and
// closes it again.
func (a *app) withTransport(fn func(tr *bitbang.Transport) error) error {
	c, err := a.newController(a.cfg, a.log)
	if err != nil {
		return fmt.Errorf("init %s backend: %w", a.cfg.Backend, err)
	}
	tr := bitbang.New(c)
	if err := tr.Open(); err != nil {
		// Release whatever the partial open claimed.
		tr.Close()
		return err
	}
	defer tr.Close()
	return fn(tr)
}
