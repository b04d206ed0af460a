package telemetry

import (
	"time"

	"github.com/nerrad567/smarthome-core/internal/device"
	"github.com/nerrad567/smarthome-core/internal/infrastructure/docstore"
)

// StateWriter records device on/off transitions. influxdb.Client satisfies
// it.
type StateWriter interface {
	WriteDeviceState(deviceID string, isOn bool, at time.Time)
}

// MirrorStates writes every device on/off transition seen on feed to w until
// the returned cancel function is called.
func MirrorStates(feed *docstore.Feed, w StateWriter) (cancel func()) {
	return feed.Watch(docstore.CollectionDevices, func(c docstore.Change) {
		if c.After == nil {
			return
		}
		isOn := c.After.Bool(device.FieldIsOn)
		if c.Before != nil && c.Before.Bool(device.FieldIsOn) == isOn {
			return
		}
		w.WriteDeviceState(c.ID, isOn, time.Now())
	})
}
