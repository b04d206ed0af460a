// Package mqtt provides MQTT connectivity for the smart home core.
//
// This package manages:
//   - Connection to an MQTT broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - An optional embedded broker for single-box deployments and tests
//
// # Architecture
//
// MQTT carries two kinds of traffic between core instances and devices:
//
//	core instance ↔ broker ↔ core instance   (smarthome/changes/{collection})
//	smart plug     → broker → core instance  (smarthome/telemetry/{deviceId})
//
// # Security Considerations
//
//   - Enable TLS for brokers reachable beyond localhost (cfg.Broker.TLS=true)
//   - The embedded broker accepts every client and should only listen on
//     loopback or a trusted segment
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllTelemetry(), 1,
//	    func(topic string, payload []byte) error {
//	        deviceID, _ := mqtt.Topics{}.ParseTelemetry(topic)
//	        return handle(deviceID, payload)
//	    })
package mqtt
