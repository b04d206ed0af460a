// Package smarthome assembles the data access layer and identity gateway
// into one explicitly constructed Client.
//
// A process opens one Client at startup and passes it to everything that
// needs data: the HTTP API, the telemetry sampler and view models. Nothing
// in the module reaches for a package-level connection.
//
//	client, err := smarthome.Open(ctx, cfg, log)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	homes, err := client.Homes.List(ctx, userID)
package smarthome
