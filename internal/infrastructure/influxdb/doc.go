// Package influxdb provides optional InfluxDB telemetry for the light
// manager.
//
// A Sink records two measurements, each tagged with the controller's
// device ID:
//   - channel_state: one point per channel output change
//   - command: one point per message received on the command topic
//
// # Usage
//
//	sink, err := influxdb.Connect(ctx, cfg.InfluxDB, cfg.Device.ID)
//	if err != nil {
//	    return err
//	}
//	defer sink.Close()
//
//	sink.WriteChannelState(1, true, time.Now())
//
// # Error Handling
//
// Connect fails fast when the server is unreachable. After that, writes
// never block or fail the caller: points are batched in the background and
// rejected batches reach the SetOnError callback as *WriteError.
package influxdb
