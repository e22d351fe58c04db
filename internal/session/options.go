package session

import (
	"fmt"
	"net"
	"net/url"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Session defaults.
const (
	// defaultConnectTimeout bounds the wait for CONNACK.
	defaultConnectTimeout = 10 * time.Second

	// defaultWriteTimeout bounds a single packet write.
	defaultWriteTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending work on disconnect.
	defaultDisconnectQuiesce = 250 // milliseconds

	// defaultKeepAlive is used until SetKeepAlive is called.
	defaultKeepAlive = 20 * time.Second

	// defaultProtocolVersion selects MQTT 3.1.1.
	defaultProtocolVersion = 4

	// probeQoS makes the broker acknowledge every probe with PUBACK.
	probeQoS = 1
)

// Options tunes a Client. Zero values select the defaults.
type Options struct {
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration

	// DisconnectQuiesce is the grace period for in-flight work, in milliseconds.
	DisconnectQuiesce uint

	// ProtocolVersion is 3 (MQTT 3.1) or 4 (MQTT 3.1.1).
	ProtocolVersion uint

	// ProbeTopic receives the liveness probes. It must be writable by the
	// client identity under the broker's policy.
	ProbeTopic string
}

func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = defaultConnectTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = defaultWriteTimeout
	}
	if o.DisconnectQuiesce == 0 {
		o.DisconnectQuiesce = defaultDisconnectQuiesce
	}
	if o.ProtocolVersion == 0 {
		o.ProtocolVersion = defaultProtocolVersion
	}
	return o
}

// buildClientOptions creates paho options for one session attempt.
//
// This configures:
//   - Broker URL (informational; the stream comes from the bound transport)
//   - Client ID and keep-alive
//   - Clean session, no paho-level reconnect or retry
func buildClientOptions(o Options, host string, port int, clientID string, keepAlive time.Duration, opener Opener) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	opts.AddBroker(fmt.Sprintf("ssl://%s", net.JoinHostPort(host, fmt.Sprint(port))))
	opts.SetClientID(clientID)
	opts.SetProtocolVersion(o.ProtocolVersion)

	// Clean session - no persistent session state on the broker
	opts.SetCleanSession(true)

	// Reconnection is driven from outside, never by paho
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)

	opts.SetConnectTimeout(o.ConnectTimeout)
	opts.SetWriteTimeout(o.WriteTimeout)
	opts.SetKeepAlive(keepAlive)
	opts.SetPingTimeout(keepAlive / 2)

	opts.SetCustomOpenConnectionFn(func(_ *url.URL, _ pahomqtt.ClientOptions) (net.Conn, error) {
		return opener.Open()
	})

	return opts
}
