// Package command parses remote actuator and mode commands, applies them
// while the device is in MANUAL mode and produces acknowledgements.
package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrMalformed is returned for payloads that cannot be applied.
	ErrMalformed = errors.New("malformed command")

	// ErrUnknownTarget is returned for an actuator name the router does not drive.
	ErrUnknownTarget = errors.New("unknown target")
)

// Target names an actuator.
type Target string

const (
	TargetFan    Target = "fan"
	TargetLED    Target = "led"
	TargetBuzzer Target = "buzzer"
)

// Targets lists every routable actuator.
var Targets = []Target{TargetFan, TargetLED, TargetBuzzer}

// ParseTarget validates an actuator name.
func ParseTarget(s string) (Target, error) {
	switch t := Target(strings.ToLower(s)); t {
	case TargetFan, TargetLED, TargetBuzzer:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTarget, s)
}

// Command is one parsed actuator command.
type Command struct {
	Target Target
	On     bool
	Level  uint32
}

type rawPayload struct {
	State *string      `json:"state"`
	Level *json.Number `json:"level"`
}

// State strings on the wire.
const (
	StateOn  = "ON"
	StateOff = "OFF"
)

func decode(data []byte) (rawPayload, error) {
	var raw rawPayload
	if err := json.Unmarshal(data, &raw); err != nil {
		return raw, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return raw, nil
}

func parseState(raw rawPayload) (bool, error) {
	if raw.State == nil {
		return false, fmt.Errorf("%w: missing state", ErrMalformed)
	}
	switch strings.ToUpper(strings.TrimSpace(*raw.State)) {
	case StateOn:
		return true, nil
	case StateOff:
		return false, nil
	}
	return false, fmt.Errorf("%w: state %q", ErrMalformed, *raw.State)
}

func parseLevel(raw rawPayload) (uint32, error) {
	if raw.Level == nil {
		return 0, fmt.Errorf("%w: missing level", ErrMalformed)
	}
	n, err := strconv.ParseInt(raw.Level.String(), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: level %q is not an integer", ErrMalformed, raw.Level.String())
	}
	if n < 0 || n > math.MaxUint32 {
		return 0, fmt.Errorf("%w: level %d out of range", ErrMalformed, n)
	}
	return uint32(n), nil
}

// ParseCommand parses {"state":"ON"|"OFF","level":<int>} for target.
// State is case-insensitive; both fields are required.
func ParseCommand(target Target, data []byte) (Command, error) {
	raw, err := decode(data)
	if err != nil {
		return Command{}, err
	}
	on, err := parseState(raw)
	if err != nil {
		return Command{}, err
	}
	level, err := parseLevel(raw)
	if err != nil {
		return Command{}, err
	}
	return Command{Target: target, On: on, Level: level}, nil
}

// ParseMode parses {"state":"ON"|"OFF"} on the mode channel. ON selects AUTO.
func ParseMode(data []byte) (auto bool, err error) {
	raw, err := decode(data)
	if err != nil {
		return false, err
	}
	return parseState(raw)
}

// Ack is the acknowledgement and state report payload.
type Ack struct {
	State   string `json:"state"`
	Level   uint32 `json:"level"`
	Success bool   `json:"success"`
}

// FormatAck encodes an acknowledgement.
func FormatAck(a Ack) []byte {
	data, _ := json.Marshal(a)
	return data
}

func stateString(on bool) string {
	if on {
		return StateOn
	}
	return StateOff
}
