package transport

import (
	"context"
	"crypto/tls"
	"net"
	"strconv"
	"sync"
	"time"
)

// Connection defaults.
const (
	// defaultDialTimeout bounds the TCP connect of one attempt.
	defaultDialTimeout = 10 * time.Second

	// defaultHandshakeTimeout bounds the TLS handshake of one attempt.
	defaultHandshakeTimeout = 10 * time.Second

	// defaultFlushTimeout bounds how long Flush waits for an in-flight write.
	defaultFlushTimeout = time.Second
)

// CredentialSource supplies the TLS configuration for each connect attempt.
// credentials.Store satisfies it.
type CredentialSource interface {
	TLSConfig() (*tls.Config, error)
}

// Handler receives transport events. Methods are called from transport
// goroutines and must not block; they should hand the event to the owner's
// event loop.
type Handler interface {
	OnConnected()
	OnEncrypted()
	OnDisconnected()
	OnError(code ErrorCode, err error)
}

// Logger defines the logging interface for the transport.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options tunes a Transport. Zero values select the defaults.
type Options struct {
	DialTimeout      time.Duration
	HandshakeTimeout time.Duration
	FlushTimeout     time.Duration

	// TCPKeepAlive is passed to net.Dialer.KeepAlive (negative disables).
	TCPKeepAlive time.Duration
}

// Transport is a TLS client connection with an observable state.
//
// Connect attempts run in the background; progress is reported through the
// Handler and through State. Every attempt gets a generation number and
// anything reported by a superseded attempt or an old connection is dropped,
// so the state always describes the most recent attempt.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Transport struct {
	creds  CredentialSource
	opts   Options
	logger Logger

	mu      sync.Mutex
	handler Handler
	state   State
	gen     uint64
	attempt *attempt
	conn    *trackedConn
}

// attempt tracks one ConnectEncrypted call until it settles.
type attempt struct {
	gen    uint64
	done   chan struct{}
	err    error
	cancel context.CancelFunc
	once   sync.Once
}

func (a *attempt) finish(err error) {
	a.once.Do(func() {
		a.err = err
		close(a.done)
	})
}

// New creates an unconnected transport.
func New(creds CredentialSource, opts Options) *Transport {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	if opts.FlushTimeout <= 0 {
		opts.FlushTimeout = defaultFlushTimeout
	}

	return &Transport{
		creds:  creds,
		opts:   opts,
		logger: noopLogger{},
		state:  StateUnconnected,
	}
}

// SetLogger sets the logger for the transport.
func (t *Transport) SetLogger(logger Logger) {
	t.logger = logger
}

// SetHandler sets the receiver of transport events.
func (t *Transport) SetHandler(h Handler) {
	t.mu.Lock()
	t.handler = h
	t.mu.Unlock()
}

// State returns the current transport state.
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// ConnectEncrypted starts a TCP connect followed by a TLS handshake to
// host:port and returns immediately. Any attempt or connection that is still
// around is dropped silently first.
//
// Progress: Connecting -> Connected (OnConnected) -> Encrypting ->
// Encrypted (OnEncrypted), or Error (OnError) on failure.
func (t *Transport) ConnectEncrypted(host string, port int) {
	ctx, cancel := context.WithCancel(context.Background())

	t.mu.Lock()
	stale := t.resetLocked()
	t.gen++
	a := &attempt{gen: t.gen, done: make(chan struct{}), cancel: cancel}
	t.attempt = a
	t.state = StateConnecting
	t.mu.Unlock()

	if stale != nil {
		_ = stale.Conn.Close()
	}

	go t.run(ctx, a, host, port)
}

// WaitForEncrypted blocks until the current attempt finishes or timeout
// elapses. A timeout does not cancel the attempt; it may still complete and
// report OnEncrypted later.
func (t *Transport) WaitForEncrypted(timeout time.Duration) error {
	t.mu.Lock()
	a := t.attempt
	state := t.state
	t.mu.Unlock()

	if state == StateEncrypted {
		return nil
	}
	if a == nil {
		return ErrNoAttempt
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-a.done:
		return a.err
	case <-timer.C:
		return ErrWaitTimeout
	}
}

// Disconnect closes the connection or abandons the attempt in progress.
// OnDisconnected is reported if the transport was not already unconnected.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	wasOpen := t.state != StateUnconnected
	conn := t.resetLocked()
	t.gen++
	gen := t.gen
	t.state = StateClosing
	h := t.handler
	t.mu.Unlock()

	if conn != nil {
		_ = conn.Conn.Close()
	}

	t.mu.Lock()
	if t.gen == gen {
		t.state = StateUnconnected
	}
	t.mu.Unlock()

	if wasOpen && h != nil {
		h.OnDisconnected()
	}
}

// Flush waits, bounded by the flush timeout, for a write that is in progress
// on the encrypted stream. A write that cannot finish in time is failed, so
// Flush is meant to be followed by Disconnect.
func (t *Transport) Flush() {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	if conn != nil {
		conn.flush(t.opts.FlushTimeout)
	}
}

// Open hands out the encrypted stream. The session layer calls it when it
// starts a session; it fails unless the transport is encrypted.
func (t *Transport) Open() (net.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateEncrypted || t.conn == nil {
		return nil, ErrNotEncrypted
	}
	return t.conn, nil
}

// resetLocked detaches the current attempt and connection. The caller closes
// the returned connection outside the lock. t.mu must be held.
func (t *Transport) resetLocked() *trackedConn {
	if t.attempt != nil {
		t.attempt.cancel()
		t.attempt.finish(ErrClosed)
	}
	conn := t.conn
	t.conn = nil
	return conn
}

// run performs one connect attempt.
func (t *Transport) run(ctx context.Context, a *attempt, host string, port int) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	tlsCfg, err := t.creds.TLSConfig()
	if err != nil {
		t.fail(a, ErrorCertificate, err)
		return
	}
	if tlsCfg.ServerName == "" {
		tlsCfg.ServerName = host
	}

	t.logger.Debug("dialing broker", "addr", addr)
	dialer := net.Dialer{Timeout: t.opts.DialTimeout, KeepAlive: t.opts.TCPKeepAlive}
	raw, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		t.fail(a, Classify(err), err)
		return
	}

	h, ok := t.advance(a, StateConnected)
	if !ok {
		_ = raw.Close()
		return
	}
	if h != nil {
		h.OnConnected()
	}
	if _, ok := t.advance(a, StateEncrypting); !ok {
		_ = raw.Close()
		return
	}

	tlsConn := tls.Client(raw, tlsCfg)
	hsCtx, cancel := context.WithTimeout(ctx, t.opts.HandshakeTimeout)
	err = tlsConn.HandshakeContext(hsCtx)
	cancel()
	if err != nil {
		_ = raw.Close()
		t.fail(a, Classify(err), err)
		return
	}

	state := tlsConn.ConnectionState()
	t.logger.Debug("tls handshake complete",
		"addr", addr,
		"version", tls.VersionName(state.Version),
		"cipher", tls.CipherSuiteName(state.CipherSuite),
	)

	t.mu.Lock()
	if t.gen != a.gen {
		t.mu.Unlock()
		_ = tlsConn.Close()
		return
	}
	t.conn = &trackedConn{Conn: tlsConn, owner: t, gen: a.gen}
	t.state = StateEncrypted
	a.finish(nil)
	h = t.handler
	t.mu.Unlock()

	if h != nil {
		h.OnEncrypted()
	}
}

// advance moves the attempt to the next state if it is still current.
func (t *Transport) advance(a *attempt, next State) (Handler, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.gen != a.gen {
		return nil, false
	}
	t.state = next
	return t.handler, true
}

// fail settles a current attempt with an error.
func (t *Transport) fail(a *attempt, code ErrorCode, err error) {
	t.mu.Lock()
	if t.gen != a.gen {
		t.mu.Unlock()
		return
	}
	t.state = StateError
	a.finish(err)
	h := t.handler
	t.mu.Unlock()

	t.logger.Debug("connect attempt failed", "code", code.String(), "error", err)
	if h != nil {
		h.OnError(code, err)
	}
}

// connLost is called when a read or write on the current stream fails.
func (t *Transport) connLost(gen uint64, err error) {
	t.mu.Lock()
	if t.gen != gen || t.state != StateEncrypted {
		t.mu.Unlock()
		return
	}
	t.state = StateUnconnected
	t.conn = nil
	h := t.handler
	t.mu.Unlock()

	if h != nil {
		h.OnError(Classify(err), err)
		h.OnDisconnected()
	}
}

// connClosed is called when the session layer closes the current stream.
func (t *Transport) connClosed(gen uint64) {
	t.mu.Lock()
	if t.gen != gen || t.state != StateEncrypted {
		t.mu.Unlock()
		return
	}
	t.state = StateUnconnected
	t.conn = nil
	h := t.handler
	t.mu.Unlock()

	if h != nil {
		h.OnDisconnected()
	}
}
