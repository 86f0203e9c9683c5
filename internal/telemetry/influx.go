package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sony/gobreaker"

	"github.com/sweeney/env-controller/internal/logger"
)

// Measurement is the InfluxDB measurement name.
const Measurement = "environment"

// ErrSuspended is returned while the breaker is open and writes are skipped.
var ErrSuspended = errors.New("telemetry suspended")

// InfluxConfig configures the InfluxDB sink.
type InfluxConfig struct {
	URL    string `mapstructure:"url"`
	Token  string `mapstructure:"token"`
	Org    string `mapstructure:"org"`
	Bucket string `mapstructure:"bucket"`

	Timeout      time.Duration `mapstructure:"timeout"`
	TripAfter    uint32        `mapstructure:"trip-after"`
	OpenInterval time.Duration `mapstructure:"open-interval"`
}

// Enabled reports whether a store is configured.
func (c InfluxConfig) Enabled() bool {
	return c.URL != ""
}

// Validate checks that an enabled config is complete.
func (c InfluxConfig) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if c.Org == "" || c.Bucket == "" {
		return fmt.Errorf("influx: org and bucket are required when url is set")
	}
	return nil
}

// InfluxSink writes points through a circuit breaker so a dead store costs
// one failed write per open interval instead of one per report.
type InfluxSink struct {
	client  influxdb2.Client
	writer  pointWriter
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
	log     *logger.Logger
}

// NewInfluxSink creates a sink for cfg.
func NewInfluxSink(cfg InfluxConfig, log *logger.Logger) *InfluxSink {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return newInfluxSink(client, client.WriteAPIBlocking(cfg.Org, cfg.Bucket), cfg, log)
}

// pointWriter is the subset of api.WriteAPIBlocking the sink uses.
type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

func newInfluxSink(client influxdb2.Client, writer pointWriter, cfg InfluxConfig, log *logger.Logger) *InfluxSink {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.TripAfter == 0 {
		cfg.TripAfter = 3
	}
	if cfg.OpenInterval <= 0 {
		cfg.OpenInterval = time.Minute
	}
	trip := cfg.TripAfter

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "influx",
		Timeout: cfg.OpenInterval,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= trip
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnw("telemetry breaker", "name", name, "from", from.String(), "to", to.String())
		},
	})

	return &InfluxSink{client: client, writer: writer, cb: cb, timeout: cfg.Timeout, log: log}
}

// ToPoint converts p to an InfluxDB point.
func ToPoint(p Point) *write.Point {
	tags := map[string]string{
		"room": p.Room,
		"mode": p.Mode,
	}
	fields := map[string]interface{}{
		"valid":             p.Reading.Valid,
		"fan_level":         int64(p.Outputs.Fan.Level()),
		"led_index":         int64(p.Outputs.LEDIndex()),
		"alert_level":       int64(p.Outputs.Alert),
		"air_quality_level": int64(p.Reading.AirQualityLevel),
	}
	if p.Reading.Valid {
		fields["temperature"] = p.Reading.Temperature
		fields["humidity"] = p.Reading.Humidity
	}
	return influxdb2.NewPoint(Measurement, tags, fields, p.Time)
}

// Write sends p unless the breaker is open.
func (s *InfluxSink) Write(ctx context.Context, p Point) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		wctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		return nil, s.writer.WritePoint(wctx, ToPoint(p))
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrSuspended
	}
	if err != nil {
		return fmt.Errorf("influx write: %w", err)
	}
	return nil
}

// State returns the breaker state name.
func (s *InfluxSink) State() string {
	return s.cb.State().String()
}

// Close releases the client.
func (s *InfluxSink) Close() {
	if s.client != nil {
		s.client.Close()
	}
}
