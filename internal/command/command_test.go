package command

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sweeney/env-controller/internal/actuator"
	"github.com/sweeney/env-controller/internal/logger"
	"github.com/sweeney/env-controller/internal/logic"
	"github.com/sweeney/env-controller/internal/mode"
	"github.com/sweeney/env-controller/internal/mqtt"
	"github.com/sweeney/env-controller/internal/status"
)

type fakeAlerts struct {
	level logic.AlertLevel
	calls int
}

func (f *fakeAlerts) SetLevel(l logic.AlertLevel) {
	f.level = l
	f.calls++
}

type harness struct {
	drv    *actuator.Fake
	alerts *fakeAlerts
	state  *status.ControlState
	arb    *mode.Arbiter
	pub    *mqtt.FakePublisher
	topics mqtt.Topics
	disp   *Dispatcher
	router *Router
}

func newHarness() *harness {
	h := &harness{
		drv:    actuator.NewFake(),
		alerts: &fakeAlerts{},
		state:  status.New(time.Now(), status.Config{}),
		pub:    mqtt.NewFakePublisher(),
		topics: mqtt.NewTopics("livingroom"),
	}
	h.arb = mode.New(h.state, h.alerts, logger.Nop())
	h.router = NewRouter(h.drv, h.alerts, h.state, logger.Nop())
	h.disp = NewDispatcher(h.topics, h.router, h.arb, h.state, h.pub, logger.Nop())
	return h
}

func (h *harness) acks(target string) []Ack {
	var out []Ack
	for _, m := range h.pub.MessagesOn(mqtt.Reported(h.topics.Actuator(target))) {
		var a Ack
		json.Unmarshal(m.Payload, &a)
		out = append(out, a)
	}
	return out
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		payload string
		on      bool
		level   uint32
		wantErr bool
	}{
		{`{"state":"ON","level":2}`, true, 2, false},
		{`{"state":"off","level":0}`, false, 0, false},
		{`{"state":"On","level":4294967295}`, true, 4294967295, false},
		{`{"state":"ON"}`, false, 0, true},
		{`{"level":1}`, false, 0, true},
		{`{"state":"MAYBE","level":1}`, false, 0, true},
		{`{"state":"ON","level":-1}`, false, 0, true},
		{`{"state":"ON","level":1.5}`, false, 0, true},
		{`{"state":"ON","level":4294967296}`, false, 0, true},
		{`{"state":1,"level":1}`, false, 0, true},
		{`not json`, false, 0, true},
		{``, false, 0, true},
		{`null`, false, 0, true},
	}
	for _, tt := range tests {
		cmd, err := ParseCommand(TargetFan, []byte(tt.payload))
		if tt.wantErr {
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("%s: expected ErrMalformed, got %v", tt.payload, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: unexpected error: %v", tt.payload, err)
			continue
		}
		if cmd.On != tt.on || cmd.Level != tt.level || cmd.Target != TargetFan {
			t.Errorf("%s: got %+v", tt.payload, cmd)
		}
	}
}

func TestParseMode(t *testing.T) {
	auto, err := ParseMode([]byte(`{"state":"ON"}`))
	if err != nil || !auto {
		t.Errorf("ON: got (%v, %v), want AUTO", auto, err)
	}
	auto, err = ParseMode([]byte(`{"state":"off"}`))
	if err != nil || auto {
		t.Errorf("OFF: got (%v, %v), want MANUAL", auto, err)
	}
	if _, err := ParseMode([]byte(`{}`)); !errors.Is(err, ErrMalformed) {
		t.Errorf("missing state: expected ErrMalformed, got %v", err)
	}
}

func TestParseTarget(t *testing.T) {
	for _, name := range []string{"fan", "LED", "buzzer"} {
		if _, err := ParseTarget(name); err != nil {
			t.Errorf("%s: unexpected error: %v", name, err)
		}
	}
	if _, err := ParseTarget("whistle"); !errors.Is(err, ErrUnknownTarget) {
		t.Errorf("expected ErrUnknownTarget, got %v", err)
	}
}

func TestRouteFanClamps(t *testing.T) {
	h := newHarness()
	res := h.router.Route(Command{Target: TargetFan, On: true, Level: 5})

	if !res.Success || res.Level != 2 || res.State != StateOn {
		t.Errorf("got %+v, want ON/2/success", res)
	}
	if h.drv.FanLevel() != 2 {
		t.Errorf("driver fan level: got %d, want 2", h.drv.FanLevel())
	}
	if h.state.Outputs().Fan != logic.FanFull {
		t.Errorf("state fan: got %v, want FULL", h.state.Outputs().Fan)
	}
}

func TestRouteFanOffForcesZero(t *testing.T) {
	h := newHarness()
	h.router.Route(Command{Target: TargetFan, On: true, Level: 1})
	res := h.router.Route(Command{Target: TargetFan, On: false, Level: 2})

	if res.Level != 0 || res.State != StateOff {
		t.Errorf("got %+v, want OFF/0", res)
	}
	if h.drv.FanLevel() != 0 {
		t.Errorf("driver fan level: got %d, want 0", h.drv.FanLevel())
	}
}

func TestRouteFanOnLevelZeroReportsOff(t *testing.T) {
	h := newHarness()
	res := h.router.Route(Command{Target: TargetFan, On: true, Level: 0})
	if res.State != StateOff || res.Level != 0 {
		t.Errorf("ack must reflect applied state, got %+v", res)
	}
}

func TestRouteLED(t *testing.T) {
	h := newHarness()

	res := h.router.Route(Command{Target: TargetLED, On: true, Level: 3})
	if !res.Success || res.Level != 3 {
		t.Errorf("got %+v", res)
	}
	if r, g, b := h.drv.Color(); (logic.Color{R: r, G: g, B: b}) != logic.Palette[3] {
		t.Errorf("driver color: got (%d,%d,%d), want palette[3]", r, g, b)
	}

	res = h.router.Route(Command{Target: TargetLED, On: true, Level: 99})
	if res.Level != 4 {
		t.Errorf("clamped index: got %d, want 4", res.Level)
	}

	res = h.router.Route(Command{Target: TargetLED, On: false, Level: 2})
	if res.State != StateOff || res.Level != 0 {
		t.Errorf("off: got %+v", res)
	}
	if !h.state.Outputs().Color.IsOff() {
		t.Error("expected LED dark after OFF")
	}
}

func TestRouteBuzzer(t *testing.T) {
	h := newHarness()

	res := h.router.Route(Command{Target: TargetBuzzer, On: true, Level: 7})
	if res.Level != uint32(logic.AlertCritical) || h.alerts.level != logic.AlertCritical {
		t.Errorf("got %+v, scheduler %v", res, h.alerts.level)
	}

	res = h.router.Route(Command{Target: TargetBuzzer, On: false, Level: 3})
	if res.State != StateOff || h.alerts.level != logic.AlertOff {
		t.Errorf("off: got %+v, scheduler %v", res, h.alerts.level)
	}
}

func TestRouteDriverFailureLeavesState(t *testing.T) {
	h := newHarness()
	h.router.Route(Command{Target: TargetFan, On: true, Level: 1})
	h.drv.FanErr = errors.New("relay stuck")

	res := h.router.Route(Command{Target: TargetFan, On: true, Level: 2})
	if res.Success {
		t.Error("expected failure")
	}
	if res.Level != 1 || res.State != StateOn {
		t.Errorf("failure ack must carry the unchanged state, got %+v", res)
	}
	if h.state.Outputs().Fan != logic.FanHalf {
		t.Errorf("state changed on failure: %v", h.state.Outputs().Fan)
	}
}

func TestDispatchBeforeModeIsDropped(t *testing.T) {
	h := newHarness()

	_, outcome := h.disp.Dispatch(h.topics.Actuator("fan"), []byte(`{"state":"ON","level":2}`))
	if outcome != Uninitialized {
		t.Errorf("outcome: got %v, want uninitialized", outcome)
	}
	if h.drv.CallCount("SetFanLevel") != 0 {
		t.Error("no actuator call may happen before a mode command")
	}
	if h.state.Outputs().Fan != logic.FanOff {
		t.Error("fan state must be unchanged")
	}
	if len(h.pub.Messages()) != 0 {
		t.Error("no ack before a mode is established")
	}
}

func TestDispatchInAutoIsIgnored(t *testing.T) {
	h := newHarness()
	h.disp.Dispatch(h.topics.Mode(), []byte(`{"state":"ON"}`))

	_, outcome := h.disp.Dispatch(h.topics.Actuator("buzzer"), []byte(`{"state":"ON","level":3}`))
	if outcome != Ignored {
		t.Errorf("outcome: got %v, want ignored", outcome)
	}
	if h.alerts.calls != 0 {
		t.Error("buzzer command must not reach the scheduler in AUTO")
	}
	if h.state.Snapshot().Counts.CommandsIgnored != 1 {
		t.Error("expected ignored counter")
	}

	acks := h.acks("buzzer")
	if len(acks) != 1 {
		t.Fatalf("expected one ack for the ignored command, got %d", len(acks))
	}
	if acks[0] != (Ack{State: "OFF", Level: 0, Success: false}) {
		t.Errorf("ignored ack: got %+v, want unchanged OFF with success=false", acks[0])
	}
}

func TestDispatchManualAppliesAndAcks(t *testing.T) {
	h := newHarness()
	h.disp.Dispatch(h.topics.Mode(), []byte(`{"state":"OFF"}`))

	res, outcome := h.disp.Dispatch(h.topics.Actuator("fan"), []byte(`{"state":"ON","level":5}`))
	if outcome != Applied || !res.Success {
		t.Fatalf("got %v %+v", outcome, res)
	}

	acks := h.acks("fan")
	if len(acks) != 1 {
		t.Fatalf("expected exactly one ack, got %d", len(acks))
	}
	if acks[0] != (Ack{State: "ON", Level: 2, Success: true}) {
		t.Errorf("ack: got %+v", acks[0])
	}
}

func TestDispatchMalformedAcksFailure(t *testing.T) {
	h := newHarness()
	h.disp.Dispatch(h.topics.Mode(), []byte(`{"state":"OFF"}`))
	h.disp.Dispatch(h.topics.Actuator("led"), []byte(`{"state":"ON","level":1}`))
	h.drv.Reset()

	_, outcome := h.disp.Dispatch(h.topics.Actuator("led"), []byte(`{"state":"ON","level":"x"}`))
	if outcome != Rejected {
		t.Errorf("outcome: got %v, want rejected", outcome)
	}
	if h.drv.CallCount("SetLEDColor") != 0 {
		t.Error("malformed command must not touch the driver")
	}

	acks := h.acks("led")
	if len(acks) != 2 {
		t.Fatalf("expected 2 acks, got %d", len(acks))
	}
	if acks[1] != (Ack{State: "ON", Level: 1, Success: false}) {
		t.Errorf("failure ack: got %+v", acks[1])
	}
}

func TestDispatchModeAck(t *testing.T) {
	h := newHarness()
	h.disp.Dispatch(h.topics.Mode(), []byte(`{"state":"ON"}`))

	msgs := h.pub.MessagesOn(mqtt.Reported(h.topics.Mode()))
	if len(msgs) != 1 {
		t.Fatalf("expected one mode ack, got %d", len(msgs))
	}
	if string(msgs[0].Payload) != `{"state":"ON","level":0,"success":true}` {
		t.Errorf("mode ack: got %s", msgs[0].Payload)
	}

	_, outcome := h.disp.Dispatch(h.topics.Mode(), []byte(`{"mode":"AUTO"}`))
	if outcome != Rejected {
		t.Errorf("malformed mode: got %v, want rejected", outcome)
	}
	if !h.arb.AutoActive() {
		t.Error("malformed mode command must not change the mode")
	}
}

func TestDispatchUnroutedTopics(t *testing.T) {
	h := newHarness()
	h.disp.Dispatch(h.topics.Mode(), []byte(`{"state":"OFF"}`))

	for _, topic := range []string{
		"smarthome/livingroom/actuators/whistle",
		"smarthome/livingroom/actuators/fan/reported",
		"smarthome/kitchen/actuators/fan",
	} {
		if _, outcome := h.disp.Dispatch(topic, []byte(`{"state":"ON","level":1}`)); outcome != Unrouted {
			t.Errorf("%s: got %v, want unrouted", topic, outcome)
		}
	}
	if h.drv.CallCount("SetFanLevel") != 0 {
		t.Error("unrouted topics must not drive actuators")
	}
}

func TestDispatchPublishFailureDoesNotFail(t *testing.T) {
	h := newHarness()
	h.disp.Dispatch(h.topics.Mode(), []byte(`{"state":"OFF"}`))
	h.pub.PublishError = errors.New("broker down")

	res, outcome := h.disp.Dispatch(h.topics.Actuator("fan"), []byte(`{"state":"ON","level":1}`))
	if outcome != Applied || !res.Success {
		t.Errorf("publish failure must not affect the command, got %v %+v", outcome, res)
	}
}
