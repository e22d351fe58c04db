// Package link keeps a single MQTT-over-TLS broker connection alive.
//
// A Link coordinates two collaborators, the secure transport and the MQTT
// session, and owns two pieces of logic:
//
//   - the lifecycle orchestrator, which opens the transport at startup and
//     opens (or reopens) the session every time the transport reports that
//     encryption completed;
//   - the liveness supervisor, which sends a probe every keep-alive interval
//     and, when a probe is still unanswered after the probe timeout and the
//     transport is no longer in a live state, reconnects the transport.
//
// There is no independent backoff loop: recovery cadence is the keep-alive
// interval.
//
// # Concurrency
//
// Everything runs on the goroutine that calls Run. Transport and session
// callbacks, the keep-alive ticker and probe deadlines are turned into events
// and handled one at a time through a transition table. The two bounded
// waits for encryption (initial connect and recovery reconnect) block that
// goroutine, and with it all event handling, for at most ConnectWait or
// ReconnectWait.
//
// # Usage
//
//	l, err := link.New(link.Config{
//	    Host:              "broker.example.com",
//	    Port:              8883,
//	    ClientID:          "device-01",
//	    KeepAliveInterval: 20 * time.Second,
//	    ProbeTimeout:      5 * time.Second,
//	    ConnectWait:       5 * time.Second,
//	    ReconnectWait:     3 * time.Second,
//	}, tr, sess, link.WithLogger(log))
//	if err != nil {
//	    return err
//	}
//	return l.Run(ctx)
package link
