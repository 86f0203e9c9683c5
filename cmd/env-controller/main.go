// Command env-controller drives a room's fan, RGB LED and buzzer from
// smoothed sensor readings, or from remote commands in MANUAL mode.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sweeney/env-controller/internal/actuator"
	"github.com/sweeney/env-controller/internal/alert"
	"github.com/sweeney/env-controller/internal/broker"
	"github.com/sweeney/env-controller/internal/command"
	"github.com/sweeney/env-controller/internal/config"
	"github.com/sweeney/env-controller/internal/control"
	"github.com/sweeney/env-controller/internal/logger"
	"github.com/sweeney/env-controller/internal/metrics"
	"github.com/sweeney/env-controller/internal/mode"
	"github.com/sweeney/env-controller/internal/mqtt"
	"github.com/sweeney/env-controller/internal/sensor"
	"github.com/sweeney/env-controller/internal/status"
	"github.com/sweeney/env-controller/internal/telemetry"
	"github.com/sweeney/env-controller/internal/web"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, config.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	if cfg.PrintConfig {
		fmt.Println(cfg)
		return
	}

	log := logger.New(cfg.LogLevel)
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatalw("fatal", "err", err)
	}
}

func run(cfg config.Config, log *logger.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.EmbeddedBroker != "" {
		b, err := broker.New(cfg.EmbeddedBroker, log.Named("broker"))
		if err != nil {
			return fmt.Errorf("init broker: %w", err)
		}
		if err := b.Start(); err != nil {
			return err
		}
		defer b.Close()
	}

	driver, err := newDriver(cfg)
	if err != nil {
		return fmt.Errorf("init actuators: %w", err)
	}
	defer driver.Close()

	// Initialize control state (before STARTUP so snapshot is available)
	state := status.New(time.Now(), status.Config{
		Room:          cfg.Room,
		SampleMs:      cfg.SamplePeriod.Milliseconds(),
		ReportMs:      cfg.ReportInterval.Milliseconds(),
		HeartbeatMs:   cfg.Heartbeat.Milliseconds(),
		Broker:        cfg.BrokerURL(),
		HTTPAddr:      cfg.HTTPAddr,
		Thresholds:    cfg.Thresholds,
		InfluxEnabled: cfg.Influx.Enabled(),
	})
	if net := readNetworkInfo(); net != nil {
		state.SetNetwork(net)
	}

	sched := alert.NewScheduler(driver, log.Named("alert"), alert.WithSlice(cfg.Slice))
	defer sched.Close()

	arbiter := mode.New(state, sched, log.Named("mode"))
	topics := mqtt.NewTopics(cfg.Room)

	client := mqtt.NewRealClient(mqtt.Options{
		Broker:             cfg.BrokerURL(),
		ClientID:           cfg.ClientID,
		Username:           cfg.Username,
		Password:           cfg.Password,
		SystemTopic:        topics.System(),
		ConnectRetries:     10,
		BufferSize:         cfg.BufferSize,
		OnConnectionChange: state.SetMQTTConnected,
	}, log.Named("mqtt"))
	defer client.Close()

	router := command.NewRouter(driver, sched, state, log.Named("command"))
	dispatcher := command.NewDispatcher(topics, router, arbiter, state, client, log.Named("command"))

	latest := sensor.NewLatestSource()
	state.SetSampleClock(latest.LastAt)
	agg := sensor.NewAggregator(cfg.Window)
	sampler := sensor.NewSampler(latest, agg, cfg.StaleAfter, log.Named("sensor"))

	sink := newSink(cfg, log.Named("telemetry"))
	defer sink.Close()

	ctrl := control.New(agg, driver, sched, arbiter, state, cfg.Thresholds, log.Named("control"),
		control.WithPublisher(client, topics),
		control.WithTelemetry(sink))

	if err := subscribe(client, topics, dispatcher, latest, log); err != nil {
		return err
	}
	if err := client.Connect(ctx); err != nil {
		return err
	}

	if cfg.HTTPAddr != "" {
		m := metrics.New(state, metrics.WithScheduler(sched), metrics.WithBuffer(client))
		srv := web.New(cfg.HTTPAddr, state, dispatcher, m, log.Named("web"))
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorw("http server error", "err", err)
			}
		}()
		defer func() {
			sctx, scancel := context.WithTimeout(context.Background(), web.ShutdownTimeout)
			defer scancel()
			srv.Shutdown(sctx)
		}()
		log.Infow("http status server listening", "addr", cfg.HTTPAddr)
	}

	publishSystem(client, state, log, time.Now(), "STARTUP", "", true)

	log.Infow("started",
		"room", cfg.Room,
		"broker", cfg.BrokerURL(),
		"sample", cfg.SamplePeriod,
		"report", cfg.ReportInterval,
		"heartbeat", cfg.Heartbeat)

	sampleTicker := time.NewTicker(cfg.SamplePeriod)
	defer sampleTicker.Stop()
	reportTicker := time.NewTicker(cfg.ReportInterval)
	defer reportTicker.Stop()

	var heartbeat <-chan time.Time
	if cfg.Heartbeat > 0 {
		hb := time.NewTicker(cfg.Heartbeat)
		defer hb.Stop()
		heartbeat = hb.C
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		sampler.Run(ctx, sampleTicker.C)
	}()
	go func() {
		defer wg.Done()
		ctrl.Run(ctx, sampler.Ready(), reportTicker.C)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	err = runLoop(client, client, state, log, time.Now, heartbeat, sigCh)
	cancel()
	wg.Wait()
	return err
}

func newDriver(cfg config.Config) (actuator.Driver, error) {
	if cfg.FakeGPIO {
		return actuator.NewFake(), nil
	}
	return actuator.NewRealDriver(cfg.Pins)
}

func newSink(cfg config.Config, log *logger.Logger) telemetry.Sink {
	if !cfg.Influx.Enabled() {
		return telemetry.Nop{}
	}
	log.Infow("influx telemetry enabled", "url", cfg.Influx.URL, "bucket", cfg.Influx.Bucket)
	return telemetry.NewInfluxSink(cfg.Influx, log)
}

// subscribe registers the command channels and the raw sample feed.
func subscribe(sub mqtt.Subscriber, topics mqtt.Topics, d *command.Dispatcher, latest *sensor.LatestSource, log *logger.Logger) error {
	if err := sub.Subscribe(topics.Mode(), 1, d.HandleMessage); err != nil {
		return fmt.Errorf("subscribe mode: %w", err)
	}
	for _, target := range command.Targets {
		if err := sub.Subscribe(topics.Actuator(string(target)), 1, d.HandleMessage); err != nil {
			return fmt.Errorf("subscribe %s: %w", target, err)
		}
	}
	err := sub.Subscribe(topics.SensorsRaw(), 0, func(topic string, payload []byte) {
		s, err := mqtt.ParseSample(payload)
		if err != nil {
			log.Warnw("bad sample payload", "topic", topic, "err", err)
		}
		latest.Push(s, time.Now())
	})
	if err != nil {
		return fmt.Errorf("subscribe samples: %w", err)
	}
	return nil
}

func runLoop(publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, state *status.ControlState, log *logger.Logger, now func() time.Time, heartbeat <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			log.Infow("shutting down", "signal", s.String())
			if mqttStatus != nil {
				state.SetMQTTConnected(mqttStatus.IsConnected())
			}
			publishSystem(publisher, state, log, now(), "SHUTDOWN", signalName(s), true)
			return nil

		case <-heartbeat:
			if mqttStatus != nil {
				state.SetMQTTConnected(mqttStatus.IsConnected())
			}
			// Refresh network info for heartbeat
			if net := readNetworkInfo(); net != nil {
				state.SetNetwork(net)
			}
			snap := state.Snapshot()
			log.Infow("heartbeat",
				"uptime", snap.Uptime().Truncate(time.Second),
				"mode", snap.ModeString(),
				"decisions", snap.Counts.Decisions,
				"commands", snap.Counts.CommandsApplied)
			publishSystem(publisher, state, log, now(), "HEARTBEAT", "", false)
		}
	}
}

// publishSystem sends a lifecycle event carrying a full status snapshot.
func publishSystem(publisher mqtt.Publisher, state *status.ControlState, log *logger.Logger, at time.Time, event, reason string, retained bool) {
	se := mqtt.SystemEvent{
		Timestamp:  at,
		Event:      event,
		Reason:     reason,
		Retained:   retained,
		RawPayload: status.FormatStatusEvent(state.Snapshot(), event, reason),
	}
	if err := publisher.PublishSystem(se); err != nil {
		log.Warnw("system event publish failed", "event", event, "err", err)
		return
	}
	log.Debugw("published system event", "event", event)
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

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
