package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the recorder.
const (
	measurementProbe     = "link_probe"
	measurementReconnect = "link_reconnect"
	measurementState     = "link_state"
)

// ProbeSent records that a liveness probe left the client.
func (c *Client) ProbeSent() {
	c.write(probePoint(c.clientID, "sent", nil, time.Now()))
}

// ProbeAnswered records a probe acknowledged after rtt.
func (c *Client) ProbeAnswered(rtt time.Duration) {
	c.write(probePoint(c.clientID, "answered", map[string]interface{}{
		"rtt_ms": float64(rtt) / float64(time.Millisecond),
	}, time.Now()))
}

// ProbeTimedOut records an unanswered probe and the transport state seen at
// the deadline.
func (c *Client) ProbeTimedOut(transportState string) {
	c.write(probePoint(c.clientID, "timeout", map[string]interface{}{
		"transport_state": transportState,
	}, time.Now()))
}

// ReconnectAttempted records a recovery reconnect and its outcome.
func (c *Client) ReconnectAttempted(err error) {
	c.write(reconnectPoint(c.clientID, err, time.Now()))
}

// TransportStateChanged records a transport state transition.
func (c *Client) TransportStateChanged(state string) {
	c.write(statePoint(c.clientID, "transport", state, time.Now()))
}

// SessionStateChanged records a session state transition.
func (c *Client) SessionStateChanged(state string) {
	c.write(statePoint(c.clientID, "session", state, time.Now()))
}

// write queues a point on the non-blocking write API.
func (c *Client) write(p *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(p)
}

func probePoint(clientID, result string, extra map[string]interface{}, ts time.Time) *write.Point {
	fields := map[string]interface{}{"count": 1}
	for k, v := range extra {
		fields[k] = v
	}

	return write.NewPoint(
		measurementProbe,
		map[string]string{
			"client_id": clientID,
			"result":    result,
		},
		fields,
		ts,
	)
}

func reconnectPoint(clientID string, err error, ts time.Time) *write.Point {
	fields := map[string]interface{}{
		"success": err == nil,
	}
	if err != nil {
		fields["error"] = err.Error()
	}

	return write.NewPoint(
		measurementReconnect,
		map[string]string{"client_id": clientID},
		fields,
		ts,
	)
}

func statePoint(clientID, layer, state string, ts time.Time) *write.Point {
	return write.NewPoint(
		measurementState,
		map[string]string{
			"client_id": clientID,
			"layer":     layer,
		},
		map[string]interface{}{"state": state},
		ts,
	)
}
