package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/sweeney/gpio-isp/internal/bitbang"
	"github.com/sweeney/gpio-isp/internal/config"
	"github.com/sweeney/gpio-isp/internal/isp"
	"github.com/sweeney/gpio-isp/internal/mqtt"
	"github.com/sweeney/gpio-isp/internal/status"
	"github.com/sweeney/gpio-isp/internal/web"
)

// publisher is an MQTT publisher that can report its connection state.
type publisher interface {
	mqtt.Publisher
	mqtt.ConnectionStatus
}

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Send the configured command on an interval and publish each exchange",
		Long: `Hold the pins open and send the configured command every interval.
Each exchange is published to MQTT when a broker is configured and the
daemon state is served over HTTP. SIGINT or SIGTERM stops the loop.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run()
		},
	}
}

func (a *app) run() error {
	cfg := a.cfg
	command, err := isp.ParseCommand(cfg.Command)
	if err != nil {
		return err
	}

	c, err := a.newController(cfg, a.log)
	if err != nil {
		return fmt.Errorf("init %s backend: %w", cfg.Backend, err)
	}

	start := time.Now()
	session := status.NewSessionID(start)
	tracker := status.NewTracker(session, start, statusConfig(cfg))

	var pub publisher = mqtt.NopPublisher{}
	if cfg.MQTT.Broker != "" {
		pub = mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID, a.log)
	}
	defer pub.Close()

	tr := bitbang.New(c)
	if err := tr.Open(); err != nil {
		// Release whatever the partial open claimed.
		tr.Close()
		return err
	}
	defer tr.Close()
	tracker.SetOpen(true)

	snap := tracker.Snapshot()
	startup := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := pub.PublishSystem(startup); err != nil {
		a.log.Warn("publish startup event", "error", err)
	}

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, a.log)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Error("http server", "error", err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
		a.log.Info("http status server listening", "addr", cfg.HTTP.Addr)
	}

	a.log.Info("started",
		"session", session,
		"backend", cfg.Backend,
		"command", command.String(),
		"interval", cfg.Interval,
		"broker", cfg.MQTT.Broker,
	)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	return runLoop(tr, command, pub, pub, tracker, session, a.log, time.Now, ticker.C, sigCh)
}

// runLoop sends command on every tick until a signal arrives. A failed
// exchange is recorded and published and the loop carries on. Repeated
// failure warnings are throttled.
func runLoop(tr *bitbang.Transport, command isp.Command, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, session string, log *slog.Logger, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	var seq uint64
	exchangeWarn := rate.Sometimes{First: 3, Interval: time.Minute}
	publishWarn := rate.Sometimes{First: 3, Interval: time.Minute}

	for {
		select {
		case s := <-sig:
			reason := signalName(s)
			log.Info("shutting down", "signal", reason, "exchanges", seq)
			if mqttStatus != nil {
				tracker.SetMQTTConnected(mqttStatus.IsConnected())
			}
			event := mqtt.SystemEvent{
				Timestamp:  now(),
				Event:      "SHUTDOWN",
				Reason:     reason,
				Retained:   true,
				RawPayload: status.FormatStatusEvent(tracker.Snapshot(), "SHUTDOWN", reason),
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Warn("publish shutdown event", "error", err)
			}
			return nil

		case <-tick:
			t := now()
			seq++
			res, err := tr.Command(command)
			tracker.RecordExchange(t, command, res, err)
			if err != nil {
				exchangeWarn.Do(func() {
					log.Warn("exchange failed", "seq", seq, "command", command.String(), "error", err)
				})
			} else {
				log.Debug("exchange", "seq", seq, "command", command.String(), "response", isp.Command(res).String())
			}

			ex := mqtt.Exchange{
				Timestamp: t,
				Session:   session,
				Seq:       seq,
				Command:   command,
				Response:  res,
				Err:       err,
			}
			if err := publisher.Publish(ex); err != nil {
				publishWarn.Do(func() {
					log.Warn("publish exchange", "seq", seq, "error", err)
				})
			}

			if mqttStatus != nil {
				tracker.SetMQTTConnected(mqttStatus.IsConnected())
			}
		}
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}

// statusConfig is the daemon configuration shown on the status page.
func statusConfig(cfg *config.Config) status.Config {
	pins := make(map[string]string, len(cfg.Assignment()))
	for role, p := range cfg.Assignment() {
		pins[role.String()] = p.String()
	}
	return status.Config{
		Backend:    cfg.Backend,
		Pins:       pins,
		Command:    cfg.Command,
		IntervalMs: cfg.Interval.Milliseconds(),
		Broker:     cfg.MQTT.Broker,
		HTTPAddr:   cfg.HTTP.Addr,
	}
}
