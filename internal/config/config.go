// Package config loads daemon settings from flags, ENVCTL_* environment
// variables and an optional YAML file, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sweeney/env-controller/internal/actuator"
	"github.com/sweeney/env-controller/internal/logger"
	"github.com/sweeney/env-controller/internal/logic"
	"github.com/sweeney/env-controller/internal/mqtt"
	"github.com/sweeney/env-controller/internal/telemetry"
)

// EnvPrefix is prepended to every environment variable.
const EnvPrefix = "ENVCTL"

// ErrHelp is returned when -h or --help was requested.
var ErrHelp = pflag.ErrHelp

// Config is the resolved daemon configuration.
type Config struct {
	Broker         string        `mapstructure:"broker"`
	ClientID       string        `mapstructure:"client-id"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	Room           string        `mapstructure:"room"`
	HTTPAddr       string        `mapstructure:"http"`
	EmbeddedBroker string        `mapstructure:"embedded-broker"`
	SamplePeriod   time.Duration `mapstructure:"sample-period"`
	ReportInterval time.Duration `mapstructure:"report-interval"`
	Heartbeat      time.Duration `mapstructure:"heartbeat"`
	Window         int           `mapstructure:"window"`
	StaleAfter     int           `mapstructure:"stale-after"`
	BufferSize     int           `mapstructure:"buffer"`
	Slice          time.Duration `mapstructure:"slice"`
	LogLevel       string        `mapstructure:"log-level"`
	FakeGPIO       bool          `mapstructure:"fake-gpio"`
	PrintConfig    bool          `mapstructure:"print-config"`

	Thresholds logic.Thresholds       `mapstructure:"thresholds"`
	Pins       actuator.Pins          `mapstructure:"pins"`
	Influx     telemetry.InfluxConfig `mapstructure:"influx"`
}

// Default returns the built-in configuration. ClientID is left empty; Load
// fills it with a random id when nothing else sets it.
func Default() Config {
	return Config{
		Broker:         "tcp://127.0.0.1:1883",
		Room:           "livingroom",
		HTTPAddr:       ":8080",
		SamplePeriod:   5 * time.Second,
		ReportInterval: 10 * time.Second,
		Heartbeat:      15 * time.Minute,
		Window:         10,
		StaleAfter:     3,
		BufferSize:     mqtt.DefaultBufferSize,
		Slice:          100 * time.Millisecond,
		LogLevel:       logger.InfoLevel,
		Thresholds:     logic.DefaultThresholds(),
		Pins:           actuator.DefaultPins(),
		Influx: telemetry.InfluxConfig{
			Timeout:      5 * time.Second,
			TripAfter:    3,
			OpenInterval: time.Minute,
		},
	}
}

func newFlagSet(d Config) *pflag.FlagSet {
	fs := pflag.NewFlagSet("env-controller", pflag.ContinueOnError)
	fs.String("config", "", "YAML config file")
	fs.String("broker", d.Broker, "MQTT broker URL")
	fs.String("client-id", "", "MQTT client id (default env-controller-<uuid>)")
	fs.String("username", "", "MQTT username")
	fs.String("password", "", "MQTT password")
	fs.String("room", d.Room, "topic room segment: smarthome/<room>/...")
	fs.String("http", d.HTTPAddr, "HTTP status address (empty to disable)")
	fs.String("embedded-broker", "", "run an MQTT broker on this address (empty to disable)")
	fs.Duration("sample-period", d.SamplePeriod, "sensor sampling and decision period")
	fs.Duration("report-interval", d.ReportInterval, "reading and state report interval")
	fs.Duration("heartbeat", d.Heartbeat, "heartbeat interval (0 to disable)")
	fs.Int("window", d.Window, "samples in the moving average")
	fs.Int("stale-after", d.StaleAfter, "consecutive failed reads before the reading is invalid")
	fs.Int("buffer", d.BufferSize, "outbound messages kept while disconnected")
	fs.Duration("slice", d.Slice, "alert pattern preemption granularity")
	fs.String("log-level", d.LogLevel, "debug, info, warn or error")
	fs.Bool("fake-gpio", false, "drive in-memory outputs instead of GPIO")
	fs.Bool("print-config", false, "print the resolved configuration and exit")
	return fs
}

// nested keys have no flags; they are set from the file or environment.
func setDefaults(v *viper.Viper, d Config) {
	t := d.Thresholds
	v.SetDefault("thresholds.fan-half-on", t.FanHalfOn)
	v.SetDefault("thresholds.fan-half-off", t.FanHalfOff)
	v.SetDefault("thresholds.fan-full-on", t.FanFullOn)
	v.SetDefault("thresholds.fan-full-off", t.FanFullOff)
	v.SetDefault("thresholds.alert-channel", string(t.AlertChannel))
	v.SetDefault("thresholds.critical-above", t.CriticalAbove)
	v.SetDefault("thresholds.warn-above", t.WarnAbove)
	v.SetDefault("thresholds.warn-air-level", t.WarnAirLevel)

	p := d.Pins
	v.SetDefault("pins.chip", p.Chip)
	v.SetDefault("pins.fan-half", p.FanHalf)
	v.SetDefault("pins.fan-full", p.FanFull)
	v.SetDefault("pins.led-r", p.LEDRed)
	v.SetDefault("pins.led-g", p.LEDGreen)
	v.SetDefault("pins.led-b", p.LEDBlue)
	v.SetDefault("pins.buzzer", p.Buzzer)

	i := d.Influx
	v.SetDefault("influx.url", i.URL)
	v.SetDefault("influx.token", i.Token)
	v.SetDefault("influx.org", i.Org)
	v.SetDefault("influx.bucket", i.Bucket)
	v.SetDefault("influx.timeout", i.Timeout)
	v.SetDefault("influx.trip-after", i.TripAfter)
	v.SetDefault("influx.open-interval", i.OpenInterval)
}

// Load parses args (without the program name) and resolves the configuration.
func Load(args []string) (Config, error) {
	d := Default()
	fs := newFlagSet(d)
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	v := viper.New()
	setDefaults(v, d)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return Config{}, fmt.Errorf("bind flags: %w", err)
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "env-controller-" + uuid.NewString()
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.Broker == "" && c.EmbeddedBroker == "" {
		errs = append(errs, errors.New("broker is required"))
	}
	if c.Room == "" || strings.ContainsAny(c.Room, "/+#") {
		errs = append(errs, fmt.Errorf("room %q must be a single topic level", c.Room))
	}
	if c.SamplePeriod <= 0 {
		errs = append(errs, fmt.Errorf("sample-period must be positive, got %v", c.SamplePeriod))
	}
	if c.ReportInterval <= 0 {
		errs = append(errs, fmt.Errorf("report-interval must be positive, got %v", c.ReportInterval))
	}
	if c.Heartbeat < 0 {
		errs = append(errs, fmt.Errorf("heartbeat must not be negative, got %v", c.Heartbeat))
	}
	if c.Window < 1 {
		errs = append(errs, fmt.Errorf("window must be at least 1, got %d", c.Window))
	}
	if c.StaleAfter < 1 {
		errs = append(errs, fmt.Errorf("stale-after must be at least 1, got %d", c.StaleAfter))
	}
	if c.Slice <= 0 {
		errs = append(errs, fmt.Errorf("slice must be positive, got %v", c.Slice))
	}
	if !logger.ValidLevel(c.LogLevel) {
		errs = append(errs, fmt.Errorf("log-level %q is not one of debug, info, warn, error", c.LogLevel))
	}
	if err := c.Thresholds.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("thresholds: %w", err))
	}
	if err := c.Influx.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// BrokerURL is the broker the client dials: the embedded one when enabled.
func (c Config) BrokerURL() string {
	if c.EmbeddedBroker != "" {
		addr := c.EmbeddedBroker
		if strings.HasPrefix(addr, ":") {
			addr = "127.0.0.1" + addr
		}
		return "tcp://" + addr
	}
	return c.Broker
}

// String renders the configuration with secrets masked.
func (c Config) String() string {
	masked := c
	if masked.Password != "" {
		masked.Password = "***"
	}
	if masked.Influx.Token != "" {
		masked.Influx.Token = "***"
	}
	return fmt.Sprintf("%+v", masked)
}
