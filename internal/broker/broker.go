// Package broker runs an optional embedded MQTT broker so a single device
// can operate without external infrastructure.
package broker

import (
	"fmt"
	"log/slog"
	"os"

	mqttbroker "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"

	"github.com/sweeney/env-controller/internal/logger"
)

// Broker wraps a mochi server with a single TCP listener.
type Broker struct {
	server *mqttbroker.Server
	addr   string
	log    *logger.Logger
}

// New creates a broker listening on addr once started. Every client is allowed.
func New(addr string, log *logger.Logger) (*Broker, error) {
	// mochi logs through slog; keep it to warnings, the daemon logs lifecycle itself.
	server := mqttbroker.New(&mqttbroker.Options{
		Logger:       slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})).With("component", "mqtt-broker"),
		InlineClient: true,
	})

	tcp := listeners.NewTCP(listeners.Config{ID: "tcp", Address: addr})
	if err := server.AddListener(tcp); err != nil {
		return nil, fmt.Errorf("add listener %s: %w", addr, err)
	}
	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		return nil, fmt.Errorf("add auth hook: %w", err)
	}
	return &Broker{server: server, addr: addr, log: log}, nil
}

// Start begins accepting connections. It does not block.
func (b *Broker) Start() error {
	if err := b.server.Serve(); err != nil {
		return fmt.Errorf("serve mqtt on %s: %w", b.addr, err)
	}
	b.log.Infow("embedded broker listening", "addr", b.addr)
	return nil
}

// URL returns the tcp:// broker URL clients should dial.
func (b *Broker) URL() string {
	return "tcp://" + dialAddr(b.addr)
}

// Publish injects a message as the broker itself.
func (b *Broker) Publish(topic string, payload []byte, retain bool, qos byte) error {
	return b.server.Publish(topic, payload, retain, qos)
}

// Clients returns the number of connected clients.
func (b *Broker) Clients() int {
	return b.server.Clients.Len()
}

// Close stops the listener and disconnects clients.
func (b *Broker) Close() error {
	b.log.Infow("embedded broker stopping")
	return b.server.Close()
}

// dialAddr turns a listen address like ":1883" into a dialable one.
func dialAddr(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "127.0.0.1" + addr
	}
	return addr
}
