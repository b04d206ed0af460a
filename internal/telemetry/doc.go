// Package telemetry produces electrical samples for powered-on devices and
// records them as voltage readings.
//
// A Source yields one Sample per device and instant. SyntheticSource
// generates plausible values deterministically; MQTTSource reports the
// latest sample a device published on smarthome/telemetry/{deviceId}. The
// Sampler polls a Source on an interval, appends readings through the
// device repository, refreshes each device's last-known values and
// optionally mirrors samples to InfluxDB.
package telemetry
