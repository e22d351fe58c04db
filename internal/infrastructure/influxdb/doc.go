// Package influxdb records broker link liveness telemetry in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library and implements
// link.Recorder, so the link can report probes, timeouts, reconnects and
// state transitions without knowing where they go.
//
// # Measurements
//
//   - link_probe: one point per probe sent, answered (rtt_ms) or timed out
//     (transport_state); tags client_id, result
//   - link_reconnect: one point per recovery reconnect; fields success, error
//   - link_state: transport and session state transitions; tags client_id, layer
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB, cfg.Broker.ClientID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	l, err := link.New(linkCfg, tr, sess, link.WithRecorder(client))
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes, so recording
// never stalls the link's event loop.
package influxdb
