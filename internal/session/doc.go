// Package session provides the MQTT session that runs over the secure
// transport.
//
// The session never dials. BindTransport gives it an Opener (the transport),
// and each Connect asks the Opener for the already-encrypted stream. paho's
// own reconnect and retry logic is switched off: recovery belongs to the
// caller.
//
// # Liveness probes
//
// MQTT 3.1.1 has no application-level ping that a client can await, and paho
// keeps PINGREQ internal. A probe is therefore a QoS 1 PUBLISH to a dedicated
// topic; the broker's PUBACK is the response. The broker policy must allow
// the client identity to publish to that topic.
//
// # Usage
//
//	s := session.New(session.Options{})
//	s.SetEndpoint("broker.example.com", 8883)
//	s.SetIdentity("device-01")
//	s.SetKeepAlive(20 * time.Second)
//	s.BindTransport(tr)
//	s.SetHandler(h)
//	if err := s.Connect(); err != nil {
//	    return err
//	}
package session
