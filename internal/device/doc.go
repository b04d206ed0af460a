// Package device stores the devices that live in rooms and their voltage
// reading history.
//
// A Device carries its power state (isOn) and its last-known electrical
// values. isOn is the only source of truth for whether a device is powered;
// Toggle writes that field and the update stamp and nothing else, so a
// concurrent edit of the name or telemetry is never clobbered.
//
// Voltage readings are append-only. Readings returns the most recent
// samples with the limit applied in the store query.
//
// # Usage
//
//	rooms := location.NewRoomRepository(store)
//	devices := device.NewRepository(store, rooms)
//	rooms.SetDeviceDeleter(devices)
//
//	id, err := devices.Create(ctx, device.NewDevice{
//	    Name:   "Lamp",
//	    Type:   device.TypeLight,
//	    RoomID: roomID,
//	})
//	if err != nil {
//	    return err
//	}
//	err = devices.Toggle(ctx, id, true)
package device
