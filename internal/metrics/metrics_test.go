package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/env-controller/internal/logic"
	"github.com/sweeney/env-controller/internal/status"
)

type fakeScheduler struct{}

func (fakeScheduler) Alive() int            { return 1 }
func (fakeScheduler) Spawned() uint64       { return 4 }
func (fakeScheduler) SpawnFailures() uint64 { return 2 }

type fakeBuffer int

func (b fakeBuffer) Buffered() int { return int(b) }

// value gathers m and returns the sample of name whose labels include want.
func value(t *testing.T, m *Metrics, name string, want ...string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if !hasLabels(metric.GetLabel(), want) {
				continue
			}
			if g := metric.GetGauge(); g != nil {
				return g.GetValue()
			}
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s%v not found", name, want)
	return 0
}

func hasLabels[L interface {
	GetName() string
	GetValue() string
}](labels []L, want []string) bool {
	for i := 0; i+1 < len(want); i += 2 {
		found := false
		for _, l := range labels {
			if l.GetName() == want[i] && l.GetValue() == want[i+1] {
				found = true
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func newState() *status.ControlState {
	st := status.New(time.Now().Add(-time.Minute), status.Config{Room: "test"})
	st.SetMode(logic.ModeAuto, true)
	st.SetFan(logic.FanHalf)
	st.SetColor(logic.Palette[3])
	st.SetAlert(logic.AlertWarn)
	st.SetReading(logic.StableReading{Temperature: 26.5, Humidity: 48, AirQualityLevel: 3, Valid: true})
	st.Count(func(c *status.Counts) {
		c.Decisions = 7
		c.CommandsApplied = 2
		c.CommandsRejected = 1
	})
	return st
}

func TestCollectorReadsSnapshot(t *testing.T) {
	m := New(newState())

	tests := []struct {
		name   string
		labels []string
		want   float64
	}{
		{"envctl_mode", nil, 1},
		{"envctl_fan_level", nil, 1},
		{"envctl_led_palette_index", nil, 3},
		{"envctl_alert_level", nil, 1},
		{"envctl_reading_valid", nil, 1},
		{"envctl_temperature_celsius", nil, 26.5},
		{"envctl_humidity_percent", nil, 48},
		{"envctl_air_quality_level", nil, 3},
		{"envctl_decisions_total", nil, 7},
		{"envctl_commands_total", []string{"outcome", "applied"}, 2},
		{"envctl_commands_total", []string{"outcome", "rejected"}, 1},
		{"envctl_commands_total", []string{"outcome", "ignored"}, 0},
	}
	for _, tt := range tests {
		if got := value(t, m, tt.name, tt.labels...); got != tt.want {
			t.Errorf("%s%v: got %v, want %v", tt.name, tt.labels, got, tt.want)
		}
	}
	if up := value(t, m, "envctl_uptime_seconds"); up < 59 {
		t.Errorf("uptime: got %v, want >= 59", up)
	}
}

func TestCollectorUninitialized(t *testing.T) {
	m := New(status.New(time.Now(), status.Config{}))

	if got := value(t, m, "envctl_mode"); got != 0 {
		t.Errorf("mode: got %v, want 0", got)
	}
	if got := value(t, m, "envctl_led_palette_index"); got != -1 {
		t.Errorf("led index: got %v, want -1", got)
	}
}

func TestOptionalCollectors(t *testing.T) {
	m := New(newState(), WithScheduler(fakeScheduler{}), WithBuffer(fakeBuffer(5)))

	if got := value(t, m, "envctl_alert_tasks"); got != 1 {
		t.Errorf("alert tasks: got %v, want 1", got)
	}
	if got := value(t, m, "envctl_alert_spawn_failures_total"); got != 2 {
		t.Errorf("spawn failures: got %v, want 2", got)
	}
	if got := value(t, m, "envctl_mqtt_buffered_messages"); got != 5 {
		t.Errorf("buffered: got %v, want 5", got)
	}
}

func TestHandlerAndWrap(t *testing.T) {
	m := New(newState())
	wrapped := m.WrapHandler("/teapot", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/teapot", nil))

	if got := value(t, m, "envctl_http_requests_total", "route", "/teapot", "status", "418"); got != 1 {
		t.Errorf("request counter: got %v, want 1", got)
	}

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "envctl_fan_level 1") {
		t.Errorf("exposition missing fan level:\n%s", body)
	}
}
