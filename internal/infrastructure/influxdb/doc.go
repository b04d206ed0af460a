// Package influxdb mirrors device telemetry into InfluxDB.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, non-blocking batched writes and health monitoring. The
// document store remains the source of truth for voltage readings; InfluxDB
// holds a copy for long-range dashboards.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteReading("dev-1", 121.4, 0.8, 97.1, time.Now())
//
// # Error Handling
//
// Writes are non-blocking; batch failures are delivered to the callback set
// with SetOnError. Connection and health check errors are returned directly.
package influxdb
