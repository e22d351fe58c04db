package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// probePayload is the body of a liveness probe.
type probePayload struct {
	ClientID string `json:"client_id"`
	ProbeID  string `json:"probe_id"`
	SentAt   string `json:"sent_at"`
}

// ProbeTopic returns the topic probes are published to.
func (c *Client) ProbeTopic() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.probeTopicLocked()
}

func (c *Client) probeTopicLocked() string {
	if c.opts.ProbeTopic != "" {
		return c.opts.ProbeTopic
	}
	return fmt.Sprintf("brokerlink/%s/liveness", c.clientID)
}

// SendProbe publishes one liveness probe at QoS 1 and returns at once.
// The broker's PUBACK, if it arrives within the keep-alive interval, is
// reported as OnProbeResponse with the returned probe id. Acknowledgements that belong to an earlier
// session are discarded.
func (c *Client) SendProbe() (string, error) {
	c.mu.Lock()
	client := c.mqtt
	state := c.state
	gen := c.gen
	topic := c.probeTopicLocked()
	clientID := c.clientID
	wait := c.keepAlive
	c.mu.Unlock()

	if client == nil || state != StateConnected {
		return "", ErrNotConnected
	}

	id := uuid.NewString()
	payload, err := json.Marshal(probePayload{
		ClientID: clientID,
		ProbeID:  id,
		SentAt:   time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return "", fmt.Errorf("encoding probe: %w", err)
	}

	token := client.Publish(topic, probeQoS, false, payload)
	go func() {
		if !token.WaitTimeout(wait) {
			return
		}
		if err := token.Error(); err != nil {
			c.logger.Debug("probe not acknowledged", "probe_id", id, "error", err)
			return
		}
		c.probeAcknowledged(gen, id)
	}()

	return id, nil
}

func (c *Client) probeAcknowledged(gen uint64, id string) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	h := c.handler
	c.mu.Unlock()

	if h != nil {
		h.OnProbeResponse(id)
	}
}
