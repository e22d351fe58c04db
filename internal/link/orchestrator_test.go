package link

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/nerrad567/brokerlink/internal/session"
	"github.com/nerrad567/brokerlink/internal/transport"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"missing host", func(c *Config) { c.Host = "" }},
		{"port zero", func(c *Config) { c.Port = 0 }},
		{"port too large", func(c *Config) { c.Port = 70000 }},
		{"missing client id", func(c *Config) { c.ClientID = "" }},
		{"no keep-alive", func(c *Config) { c.KeepAliveInterval = 0 }},
		{"probe timeout too long", func(c *Config) { c.ProbeTimeout = c.KeepAliveInterval }},
		{"no connect wait", func(c *Config) { c.ConnectWait = 0 }},
		{"no reconnect wait", func(c *Config) { c.ReconnectWait = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.modify(&cfg)
			tr := newFakeTransport()

			_, err := New(cfg, tr, newFakeSession(tr))
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("New() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestNew_MissingCollaborator(t *testing.T) {
	tr := newFakeTransport()
	if _, err := New(testConfig(), nil, newFakeSession(tr)); !errors.Is(err, ErrMissingCollaborator) {
		t.Errorf("New(nil transport) error = %v, want ErrMissingCollaborator", err)
	}
	if _, err := New(testConfig(), tr, nil); !errors.Is(err, ErrMissingCollaborator) {
		t.Errorf("New(nil session) error = %v, want ErrMissingCollaborator", err)
	}
}

func TestPrepare_ConfiguresSession(t *testing.T) {
	h := newHarness(t)

	if h.ss.host != "broker.test" || h.ss.port != 8883 {
		t.Errorf("endpoint = %s:%d, want broker.test:8883", h.ss.host, h.ss.port)
	}
	if h.ss.clientID != "device-01" {
		t.Errorf("client id = %q, want device-01", h.ss.clientID)
	}
	if h.ss.keepAlive != 20*time.Second {
		t.Errorf("keep-alive = %v, want 20s", h.ss.keepAlive)
	}
	if h.ss.opener != session.Opener(h.tr) {
		t.Error("session not bound to the transport")
	}
}

func TestStartInitialConnection(t *testing.T) {
	h := newHarness(t)
	h.boot()

	if got := h.tr.State(); got != transport.StateEncrypted {
		t.Errorf("transport state = %v, want encrypted", got)
	}
	connects, _, _ := h.ss.counts()
	if connects != 1 {
		t.Errorf("session connects = %d, want 1", connects)
	}
	if got := h.snapshot().SessionState; got != "connected" {
		t.Errorf("snapshot session state = %q, want connected", got)
	}
}

func TestStartInitialConnection_WaitTimeoutContinues(t *testing.T) {
	h := newHarness(t)
	h.tr.encryptOnWait = false
	h.boot()

	connects, _, _ := h.ss.counts()
	if connects != 0 {
		t.Fatalf("session connects = %d, want 0 before encryption", connects)
	}

	// The attempt completes later and the session follows.
	h.tr.encrypt()
	h.settle()

	connects, _, _ = h.ss.counts()
	if connects != 1 {
		t.Errorf("session connects = %d, want 1 after late encryption", connects)
	}
}

// The session is connected exactly when the latest transport event was
// encryption completing, and never while the transport is not encrypted.
func TestSessionConnectOnlyAfterEncryption(t *testing.T) {
	h := newHarness(t)
	h.tr.encryptOnWait = false
	h.boot()

	sink := transportSink{h.l}
	steps := []struct {
		name   string
		state  transport.State
		report func()
	}{
		{"connected", transport.StateConnected, sink.OnConnected},
		{"error", transport.StateError, func() { sink.OnError(transport.ErrorHandshake, errors.New("handshake")) }},
		{"disconnected", transport.StateUnconnected, sink.OnDisconnected},
		{"encrypted", transport.StateEncrypted, sink.OnEncrypted},
		{"disconnected again", transport.StateUnconnected, sink.OnDisconnected},
		{"encrypted again", transport.StateEncrypted, sink.OnEncrypted},
	}

	wantConnects := 0
	for _, step := range steps {
		h.tr.setState(step.state)
		step.report()
		h.settle()

		if step.state == transport.StateEncrypted {
			wantConnects++
		}
		connects, _, _ := h.ss.counts()
		if connects != wantConnects {
			t.Fatalf("after %s: session connects = %d, want %d", step.name, connects, wantConnects)
		}
	}

	for i, st := range h.ss.transportAtConnect {
		if st != transport.StateEncrypted {
			t.Errorf("connect %d issued with transport %v", i, st)
		}
	}
}

func TestEncryptedEvent_StaleIgnored(t *testing.T) {
	h := newHarness(t)
	h.tr.encryptOnWait = false
	h.boot()

	// Encryption is reported, but the transport drops before the event is
	// handled.
	h.tr.encrypt()
	h.tr.setState(transport.StateUnconnected)
	h.settle()

	if connects, _, _ := h.ss.counts(); connects != 0 {
		t.Errorf("session connects = %d, want 0 for a stale encryption event", connects)
	}
}

func TestEncryptedEvent_ReplacesConnectedSession(t *testing.T) {
	h := newHarness(t)
	h.boot()

	h.tr.encrypt()
	h.settle()

	connects, disconnects, _ := h.ss.counts()
	if connects != 2 || disconnects != 1 {
		t.Errorf("session connects/disconnects = %d/%d, want 2/1", connects, disconnects)
	}
}

func TestEncryptedEvent_ConnectingSessionNotClosed(t *testing.T) {
	h := newHarness(t)
	h.ss.acceptOnConnect = false
	h.boot()

	if got := h.ss.State(); got != session.StateConnecting {
		t.Fatalf("session state = %v, want connecting", got)
	}

	h.tr.encrypt()
	h.settle()

	if _, disconnects, _ := h.ss.counts(); disconnects != 0 {
		t.Errorf("session disconnects = %d, want 0 for a session still connecting", disconnects)
	}
}

func TestObserverAndSnapshot(t *testing.T) {
	h := newHarness(t)
	h.boot()

	h.tr.setState(transport.StateEncrypted)
	transportSink{h.l}.OnError(transport.ErrorRemoteHostClosed, errors.New("eof"))
	sessionSink{h.l}.OnErrorChanged(session.ErrorTransportInvalid)
	h.settle()

	if n := h.obs.seen("transport.encrypted"); n != 1 {
		t.Errorf("observer saw transport.encrypted %d times, want 1", n)
	}
	if n := h.obs.seen("session.connected"); n != 1 {
		t.Errorf("observer saw session.connected %d times, want 1", n)
	}
	if h.obs.last.Kind != "session.error_changed" || h.obs.last.Detail != "transport_invalid" {
		t.Errorf("last event = %+v", h.obs.last)
	}

	snap := h.snapshot()
	if snap.LastTransportError != "remote_host_closed" {
		t.Errorf("LastTransportError = %q", snap.LastTransportError)
	}
	if snap.LastSessionError != "transport_invalid" {
		t.Errorf("LastSessionError = %q", snap.LastSessionError)
	}
	if snap.TransportState != "encrypted" {
		t.Errorf("TransportState = %q, want encrypted", snap.TransportState)
	}

	// The handshake completes inside the initial wait, before the first
	// event is handled.
	wantTransport := []string{"encrypted"}
	if fmt.Sprint(h.rec.transport) != fmt.Sprint(wantTransport) {
		t.Errorf("recorded transport states = %v, want %v", h.rec.transport, wantTransport)
	}
}

func TestRun_ShutdownOnCancel(t *testing.T) {
	clock := newFakeClock()
	tr := newFakeTransport()
	ss := newFakeSession(tr)

	l, err := New(testConfig(), tr, ss, WithClock(clock))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for l.Snapshot().SessionState != "connected" && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := l.Snapshot(); !got.Running || got.SessionState != "connected" {
		t.Fatalf("snapshot = %+v, want running with a connected session", got)
	}

	if err := l.Run(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run() error = %v, want ErrAlreadyRunning", err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}

	if got := ss.State(); got != session.StateDisconnected {
		t.Errorf("session state after shutdown = %v, want disconnected", got)
	}
	if got := tr.State(); got != transport.StateUnconnected {
		t.Errorf("transport state after shutdown = %v, want unconnected", got)
	}
	if l.Snapshot().Running {
		t.Error("Running = true after Run returned")
	}
}

func TestWaitErrorCode(t *testing.T) {
	if got := waitErrorCode(fmt.Errorf("waiting: %w", transport.ErrWaitTimeout)); got != transport.ErrorSocketTimeout {
		t.Errorf("waitErrorCode(timeout) = %v, want socket_timeout", got)
	}
	if got := waitErrorCode(errors.New("boom")); got != transport.ErrorUnknown {
		t.Errorf("waitErrorCode(other) = %v, want unknown", got)
	}
}

func TestEventKindString(t *testing.T) {
	for kind := range transitions {
		if kind.String() == "unknown" {
			t.Errorf("event kind %d has no name", kind)
		}
	}
	if got := eventKind(99).String(); got != "unknown" {
		t.Errorf("String() = %q, want unknown", got)
	}
}

type levelLogger struct {
	info, debug []string
}

func (l *levelLogger) Debug(msg string, _ ...any) { l.debug = append(l.debug, msg) }
func (l *levelLogger) Info(msg string, _ ...any)  { l.info = append(l.info, msg) }
func (l *levelLogger) Warn(string, ...any)        {}
func (l *levelLogger) Error(string, ...any)       {}

func TestExtendedDiagnostics(t *testing.T) {
	for _, extended := range []bool{false, true} {
		t.Run(fmt.Sprint(extended), func(t *testing.T) {
			cfg := testConfig()
			cfg.ExtendedDiagnostics = extended
			logger := &levelLogger{}
			tr := newFakeTransport()

			l, err := New(cfg, tr, newFakeSession(tr), WithLogger(logger))
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			l.diag("transport connected")

			gotInfo := slices.Contains(logger.info, "transport connected")
			gotDebug := slices.Contains(logger.debug, "transport connected")
			if gotInfo != extended || gotDebug == extended {
				t.Errorf("info=%v debug=%v, want info=%v", gotInfo, gotDebug, extended)
			}
		})
	}
}
