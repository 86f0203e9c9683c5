package mqtt

import "strings"

// TopicRoot is the first level of every topic.
const TopicRoot = "smarthome"

// ReportedSuffix is appended to a command topic for its acknowledgement.
const ReportedSuffix = "/reported"

// Topics builds the per-room topic tree:
//
//	smarthome/{room}/actuators/{name}          commands
//	smarthome/{room}/actuators/{name}/reported acks and AUTO state reports
//	smarthome/{room}/mode                      mode commands (ON = AUTO)
//	smarthome/{room}/sensors/raw               raw samples in
//	smarthome/{room}/sensors                   stable readings out
//	smarthome/{room}/system                    lifecycle events
type Topics struct {
	base string
}

// NewTopics returns the topic tree for room.
func NewTopics(room string) Topics {
	return Topics{base: TopicRoot + "/" + room}
}

// Actuator returns the command topic for an actuator.
func (t Topics) Actuator(name string) string {
	return t.base + "/actuators/" + name
}

// Mode returns the mode command topic.
func (t Topics) Mode() string {
	return t.base + "/mode"
}

// SensorsRaw returns the raw sample topic.
func (t Topics) SensorsRaw() string {
	return t.base + "/sensors/raw"
}

// Sensors returns the stable reading topic.
func (t Topics) Sensors() string {
	return t.base + "/sensors"
}

// System returns the lifecycle topic.
func (t Topics) System() string {
	return t.base + "/system"
}

// Reported returns the acknowledgement topic for a command topic.
func Reported(topic string) string {
	return topic + ReportedSuffix
}

// ActuatorName extracts the actuator name from a command topic.
// Acknowledgement topics and topics outside the room are rejected.
func (t Topics) ActuatorName(topic string) (string, bool) {
	name, ok := strings.CutPrefix(topic, t.base+"/actuators/")
	if !ok || name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return name, true
}
