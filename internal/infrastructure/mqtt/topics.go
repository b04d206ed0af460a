package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every smart home topic.
const TopicPrefix = "smarthome"

// Topics provides builders and parsers for smart home MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.Changes("devices")   // "smarthome/changes/devices"
//	topics.Telemetry("dev-1")   // "smarthome/telemetry/dev-1"
type Topics struct{}

// SystemStatus returns the retained online/offline status topic.
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// Changes returns the topic on which document changes of a collection are
// relayed between core instances.
func (Topics) Changes(collection string) string {
	return fmt.Sprintf("%s/changes/%s", TopicPrefix, collection)
}

// AllChanges matches the change topics of every collection.
func (Topics) AllChanges() string {
	return TopicPrefix + "/changes/+"
}

// Telemetry returns the topic a device publishes measurements on.
func (Topics) Telemetry(deviceID string) string {
	return fmt.Sprintf("%s/telemetry/%s", TopicPrefix, deviceID)
}

// AllTelemetry matches the telemetry topics of every device.
func (Topics) AllTelemetry() string {
	return TopicPrefix + "/telemetry/+"
}

// DeviceState returns the retained topic carrying a device's on/off state,
// for devices that follow the core instead of polling it.
func (Topics) DeviceState(deviceID string) string {
	return fmt.Sprintf("%s/devices/%s/state", TopicPrefix, deviceID)
}

// AllTopics matches every smart home topic.
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}

// ParseChanges returns the collection of a change topic.
func (Topics) ParseChanges(topic string) (string, bool) {
	return lastSegment(topic, TopicPrefix+"/changes/")
}

// ParseTelemetry returns the device id of a telemetry topic.
func (Topics) ParseTelemetry(topic string) (string, bool) {
	return lastSegment(topic, TopicPrefix+"/telemetry/")
}

func lastSegment(topic, prefix string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, prefix)
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}
