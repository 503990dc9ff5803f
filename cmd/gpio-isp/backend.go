package main

import (
	"fmt"
	"log/slog"

	"github.com/sweeney/gpio-isp/internal/config"
	"github.com/sweeney/gpio-isp/internal/gpio"
	"github.com/sweeney/gpio-isp/internal/periph"
	"github.com/sweeney/gpio-isp/internal/sysfs"
)

// openController builds an unopened controller for cfg.Backend.
func openController(cfg *config.Config, log *slog.Logger) (gpio.Controller, error) {
	opts := append(cfg.Options(), gpio.WithLogger(log))
	a := cfg.Assignment()

	switch cfg.Backend {
	case config.BackendSysfs:
		b, err := sysfs.New(sysfs.Dir{Root: cfg.SysfsRoot}, a, opts...)
		if err != nil {
			return nil, err
		}
		return b, nil
	case config.BackendCdev:
		c, err := gpio.NewCdevController(cfg.Chip, a, opts...)
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.BackendPeriph:
		b, err := periph.New(a, opts...)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}
