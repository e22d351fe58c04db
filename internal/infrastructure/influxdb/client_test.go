package influxdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/brokerlink/internal/infrastructure/config"
	"github.com/nerrad567/brokerlink/internal/infrastructure/influxdb"
)

// testConfig returns a configuration for a local dev InfluxDB.
func testConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "brokerlink-dev-token",
		Org:           "brokerlink",
		Bucket:        "liveness",
		BatchSize:     100,
		FlushInterval: 1, // 1 second for faster test feedback
	}
}

// skipIfNoInfluxDB skips the test if InfluxDB is not running.
func skipIfNoInfluxDB(t *testing.T) {
	t.Helper()
	if os.Getenv("RUN_INTEGRATION") == "" {
		client, err := influxdb.Connect(testConfig(), "probe-check")
		if err != nil {
			t.Skip("InfluxDB not available, skipping integration test")
		}
		client.Close()
	}
}

// fakeInflux serves the ping and write endpoints of the v2 HTTP API and
// keeps every line written.
type fakeInflux struct {
	srv *httptest.Server

	mu    sync.Mutex
	lines []string
}

func newFakeInflux(t *testing.T) *fakeInflux {
	t.Helper()
	f := &fakeInflux{}
	mux := http.NewServeMux()
	mux.HandleFunc("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/api/v2/write", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		for _, line := range strings.Split(strings.TrimSpace(string(body)), "\n") {
			if line != "" {
				f.lines = append(f.lines, line)
			}
		}
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeInflux) config() config.InfluxDBConfig {
	cfg := testConfig()
	cfg.URL = f.srv.URL
	return cfg
}

func (f *fakeInflux) written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

// waitWritten polls until n lines arrived; batches are flushed asynchronously.
func (f *fakeInflux) waitWritten(t *testing.T, n int) []string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		lines := f.written()
		if len(lines) >= n || time.Now().After(deadline) {
			return lines
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	_, err := influxdb.Connect(cfg, "device-01")
	if err == nil {
		t.Fatal("Connect() should return error when disabled")
	}
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_InvalidURL(t *testing.T) {
	cfg := testConfig()
	cfg.URL = "http://127.0.0.1:59999" // Non-existent port

	_, err := influxdb.Connect(cfg, "device-01")
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_FakeServer(t *testing.T) {
	f := newFakeInflux(t)

	client, err := influxdb.Connect(f.config(), "device-01")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestConnect_NegativeBatchSettings(t *testing.T) {
	f := newFakeInflux(t)
	cfg := f.config()
	cfg.BatchSize = -5     // Negative, should use default
	cfg.FlushInterval = -1 // Negative, should use default

	client, err := influxdb.Connect(cfg, "device-01")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect() with negative batch settings")
	}
}

// =============================================================================
// Recorder Tests
// =============================================================================

func TestRecorder_WritesTaggedPoints(t *testing.T) {
	f := newFakeInflux(t)

	client, err := influxdb.Connect(f.config(), "device-01")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	client.ProbeSent()
	client.ProbeAnswered(250 * time.Millisecond)
	client.ProbeTimedOut("unconnected")
	client.ReconnectAttempted(nil)
	client.TransportStateChanged("encrypted")
	client.SessionStateChanged("connected")
	client.Flush()

	lines := f.waitWritten(t, 6)
	if len(lines) != 6 {
		t.Fatalf("written lines = %d, want 6: %v", len(lines), lines)
	}

	want := []string{
		"link_probe,client_id=device-01,result=sent ",
		"link_probe,client_id=device-01,result=answered ",
		"link_probe,client_id=device-01,result=timeout ",
		"link_reconnect,client_id=device-01 ",
		"link_state,client_id=device-01,layer=transport ",
		"link_state,client_id=device-01,layer=session ",
	}
	for i, prefix := range want {
		if !strings.HasPrefix(lines[i], prefix) {
			t.Errorf("line %d = %q, want prefix %q", i, lines[i], prefix)
		}
	}
}

func TestRecorder_AfterClose(t *testing.T) {
	f := newFakeInflux(t)

	client, err := influxdb.Connect(f.config(), "device-01")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// Recording after close is a no-op.
	client.ProbeSent()
	client.Flush()

	if got := f.written(); len(got) != 0 {
		t.Errorf("written lines after Close() = %v, want none", got)
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestClose_FlushesQueuedPoints(t *testing.T) {
	f := newFakeInflux(t)

	client, err := influxdb.Connect(f.config(), "device-01")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	client.ProbeSent()
	client.ReconnectAttempted(errors.New("wait timed out"))
	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if lines := f.waitWritten(t, 2); len(lines) != 2 {
		t.Errorf("written lines = %v, want the 2 points queued before Close()", lines)
	}
}

func TestHealthCheck_FakeServer(t *testing.T) {
	f := newFakeInflux(t)

	client, err := influxdb.Connect(f.config(), "device-01")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	f.srv.Close()
	if err := client.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() should fail once the server is gone")
	}
}

// =============================================================================
// Integration Tests
// =============================================================================

func TestHealthCheck(t *testing.T) {
	skipIfNoInfluxDB(t)

	client, err := influxdb.Connect(testConfig(), "device-01")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestHealthCheck_Cancelled(t *testing.T) {
	skipIfNoInfluxDB(t)

	client, err := influxdb.Connect(testConfig(), "device-01")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := client.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() should return error for cancelled context")
	}
}

func TestRecorder_Live(t *testing.T) {
	skipIfNoInfluxDB(t)

	client, err := influxdb.Connect(testConfig(), "integration-device")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	// Track errors with mutex for race safety
	var writeErr error
	var mu sync.Mutex
	client.SetOnError(func(err error) {
		mu.Lock()
		writeErr = err
		mu.Unlock()
	})

	client.ProbeSent()
	client.ProbeAnswered(40 * time.Millisecond)
	client.ReconnectAttempted(errors.New("wait timed out"))
	client.Flush()

	// Give a moment for error callback
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if writeErr != nil {
		t.Errorf("Write error = %v", writeErr)
	}
}
