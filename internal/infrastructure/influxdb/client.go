package influxdb

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/brokerlink/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second
)

// Client records link liveness telemetry in InfluxDB.
//
// It implements link.Recorder: every probe, timeout, reconnect and state
// change becomes a point tagged with the broker client ID.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Points are queued on a batched, non-blocking write API.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	clientID string

	mu        sync.RWMutex
	connected bool
	onError   func(err error)
}

// Connect pings the InfluxDB server and prepares a batched writer for the
// given broker client ID. A disabled configuration returns ErrDisabled; an
// unreachable or unhealthy server returns ErrConnectionFailed.
func Connect(cfg config.InfluxDBConfig, clientID string) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, writeOptions(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := ping(ctx, client); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c := &Client{
		client:    client,
		writeAPI:  client.WriteAPI(cfg.Org, cfg.Bucket),
		clientID:  clientID,
		connected: true,
	}
	go c.forwardWriteErrors(c.writeAPI.Errors())

	return c, nil
}

// writeOptions maps the batch settings onto client options. Non-positive
// values fall back to the defaults.
func writeOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batch := uint(defaultBatchSize)
	if cfg.BatchSize > 0 {
		batch = uint(cfg.BatchSize)
	}
	interval := defaultFlushInterval
	if cfg.FlushInterval > 0 {
		interval = time.Duration(cfg.FlushInterval) * time.Second
	}

	// #nosec G115 -- interval is positive and well below MaxUint32 ms
	return influxdb2.DefaultOptions().
		SetBatchSize(batch).
		SetFlushInterval(uint(interval.Milliseconds()))
}

func ping(ctx context.Context, client influxdb2.Client) error {
	healthy, err := client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	if !healthy {
		return fmt.Errorf("server not healthy")
	}
	return nil
}

func (c *Client) forwardWriteErrors(errs <-chan error) {
	for err := range errs {
		c.mu.RLock()
		callback := c.onError
		c.mu.RUnlock()

		if callback != nil {
			callback(err)
		}
	}
}

// Close flushes queued points and releases the client. Later recorder calls
// are dropped. Close always returns nil.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	c.Flush()

	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	c.client.Close()
	return nil
}

// HealthCheck pings the server. The status server reports the result as
// telemetry health.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := ping(ctx, c.client); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	return nil
}

// IsConnected reports whether the client accepts points. It does not
// contact the server.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// SetOnError sets the callback for failed background writes.
func (c *Client) SetOnError(callback func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = callback
}

// Flush blocks until queued points are written. It is a no-op once the
// client is closed.
func (c *Client) Flush() {
	if c.writeAPI == nil || !c.IsConnected() {
		return
	}
	c.writeAPI.Flush()
}
