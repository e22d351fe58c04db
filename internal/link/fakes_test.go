package link

import (
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/brokerlink/internal/session"
	"github.com/nerrad567/brokerlink/internal/transport"
)

// =============================================================================
// Manual clock
// =============================================================================

type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	timers  []*fakeTimer
	tickers []*fakeTicker
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{clock: c, period: d, next: c.now.Add(d), c: make(chan time.Time, 1)}
	c.tickers = append(c.tickers, t)
	return t
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock forward by d, firing due timers and ticks in time
// order. Timer callbacks run on the caller's goroutine.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var due []func()
		next := target

		for _, t := range c.timers {
			if !t.done && !t.at.After(next) {
				next = t.at
			}
		}
		for _, tk := range c.tickers {
			if !tk.stopped && !tk.next.After(next) {
				next = tk.next
			}
		}

		remaining := c.timers[:0]
		for _, t := range c.timers {
			if !t.done && t.at.Equal(next) && !next.After(target) {
				t.done = true
				due = append(due, t.f)
				continue
			}
			if !t.done {
				remaining = append(remaining, t)
			}
		}
		c.timers = remaining

		for _, tk := range c.tickers {
			if !tk.stopped && tk.next.Equal(next) && !next.After(target) {
				select {
				case tk.c <- next:
				default:
				}
				tk.next = tk.next.Add(tk.period)
			}
		}

		c.now = next
		c.mu.Unlock()

		for _, f := range due {
			f()
		}
		if !next.Before(target) {
			return
		}
	}
}

type fakeTimer struct {
	clock *fakeClock
	at    time.Time
	f     func()
	done  bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

type fakeTicker struct {
	clock   *fakeClock
	period  time.Duration
	next    time.Time
	c       chan time.Time
	stopped bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.c }

func (t *fakeTicker) Stop() {
	t.clock.mu.Lock()
	t.stopped = true
	t.clock.mu.Unlock()
}

// =============================================================================
// Transport double
// =============================================================================

type fakeTransport struct {
	mu       sync.Mutex
	handler  transport.Handler
	state    transport.State
	calls    []string
	connects int

	// encryptOnWait completes the handshake inside WaitForEncrypted.
	encryptOnWait bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{state: transport.StateUnconnected, encryptOnWait: true}
}

func (f *fakeTransport) SetHandler(h transport.Handler) {
	f.mu.Lock()
	f.handler = h
	f.mu.Unlock()
}

func (f *fakeTransport) ConnectEncrypted(host string, port int) {
	f.mu.Lock()
	f.calls = append(f.calls, "connect")
	f.connects++
	f.state = transport.StateConnecting
	f.mu.Unlock()
}

func (f *fakeTransport) WaitForEncrypted(time.Duration) error {
	f.mu.Lock()
	encrypt := f.encryptOnWait
	f.mu.Unlock()

	if !encrypt {
		return transport.ErrWaitTimeout
	}
	f.encrypt()
	return nil
}

// encrypt completes a handshake, reporting both events.
func (f *fakeTransport) encrypt() {
	f.mu.Lock()
	f.state = transport.StateConnected
	h := f.handler
	f.mu.Unlock()
	h.OnConnected()

	f.mu.Lock()
	f.state = transport.StateEncrypted
	f.mu.Unlock()
	h.OnEncrypted()
}

func (f *fakeTransport) Disconnect() {
	f.mu.Lock()
	f.calls = append(f.calls, "disconnect")
	prev := f.state
	f.state = transport.StateUnconnected
	h := f.handler
	f.mu.Unlock()

	if prev != transport.StateUnconnected {
		h.OnDisconnected()
	}
}

func (f *fakeTransport) Flush() {
	f.mu.Lock()
	f.calls = append(f.calls, "flush")
	f.mu.Unlock()
}

func (f *fakeTransport) State() transport.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeTransport) Open() (net.Conn, error) {
	return nil, transport.ErrNotEncrypted
}

// setState changes the state without reporting anything, like a link that
// died silently.
func (f *fakeTransport) setState(s transport.State) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

func (f *fakeTransport) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

func (f *fakeTransport) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// =============================================================================
// Session double
// =============================================================================

type fakeSession struct {
	mu      sync.Mutex
	handler session.Handler
	state   session.State
	tr      *fakeTransport

	host      string
	port      int
	clientID  string
	keepAlive time.Duration
	opener    session.Opener

	connects    int
	disconnects int
	probes      int
	lastProbe   string
	errCode     session.ErrorCode

	// transportAtConnect records the transport state seen by every Connect.
	transportAtConnect []transport.State

	// acceptOnConnect completes the session inside Connect.
	acceptOnConnect bool
}

func newFakeSession(tr *fakeTransport) *fakeSession {
	return &fakeSession{state: session.StateDisconnected, tr: tr, acceptOnConnect: true}
}

func (f *fakeSession) SetEndpoint(host string, port int) {
	f.mu.Lock()
	f.host, f.port = host, port
	f.mu.Unlock()
}

func (f *fakeSession) SetIdentity(clientID string) {
	f.mu.Lock()
	f.clientID = clientID
	f.mu.Unlock()
}

func (f *fakeSession) SetKeepAlive(d time.Duration) {
	f.mu.Lock()
	f.keepAlive = d
	f.mu.Unlock()
}

func (f *fakeSession) BindTransport(o session.Opener) {
	f.mu.Lock()
	f.opener = o
	f.mu.Unlock()
}

func (f *fakeSession) SetHandler(h session.Handler) {
	f.mu.Lock()
	f.handler = h
	f.mu.Unlock()
}

func (f *fakeSession) Connect() error {
	ts := f.tr.State()

	f.mu.Lock()
	f.connects++
	f.transportAtConnect = append(f.transportAtConnect, ts)
	f.state = session.StateConnecting
	accept := f.acceptOnConnect
	h := f.handler
	f.mu.Unlock()

	h.OnStateChanged(session.StateConnecting)
	if accept {
		f.accept()
	}
	return nil
}

// accept completes a pending session.
func (f *fakeSession) accept() {
	f.mu.Lock()
	f.state = session.StateConnected
	h := f.handler
	f.mu.Unlock()

	h.OnStateChanged(session.StateConnected)
	h.OnConnected()
}

func (f *fakeSession) Disconnect() {
	f.mu.Lock()
	prev := f.state
	f.state = session.StateDisconnected
	f.disconnects++
	h := f.handler
	f.mu.Unlock()

	if prev == session.StateDisconnected {
		return
	}
	h.OnStateChanged(session.StateDisconnected)
	if prev == session.StateConnected {
		h.OnDisconnected(nil)
	}
}

func (f *fakeSession) SendProbe() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.probes++
	if f.state != session.StateConnected {
		return "", session.ErrNotConnected
	}
	f.lastProbe = fmt.Sprintf("probe-%d", f.probes)
	return f.lastProbe, nil
}

func (f *fakeSession) State() session.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeSession) Error() session.ErrorCode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errCode
}

// respond acknowledges the most recently sent probe.
func (f *fakeSession) respond() {
	f.mu.Lock()
	id := f.lastProbe
	f.mu.Unlock()
	f.respondTo(id)
}

// respondTo delivers an acknowledgement for the given probe id.
func (f *fakeSession) respondTo(id string) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	h.OnProbeResponse(id)
}

func (f *fakeSession) counts() (connects, disconnects, probes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects, f.disconnects, f.probes
}

// =============================================================================
// Recorder and observer doubles
// =============================================================================

type fakeRecorder struct {
	mu         sync.Mutex
	sent       int
	answered   []time.Duration
	timeouts   []string
	reconnects []error
	transport  []string
	session    []string
}

func (r *fakeRecorder) ProbeSent() {
	r.mu.Lock()
	r.sent++
	r.mu.Unlock()
}

func (r *fakeRecorder) ProbeAnswered(rtt time.Duration) {
	r.mu.Lock()
	r.answered = append(r.answered, rtt)
	r.mu.Unlock()
}

func (r *fakeRecorder) ProbeTimedOut(state string) {
	r.mu.Lock()
	r.timeouts = append(r.timeouts, state)
	r.mu.Unlock()
}

func (r *fakeRecorder) ReconnectAttempted(err error) {
	r.mu.Lock()
	r.reconnects = append(r.reconnects, err)
	r.mu.Unlock()
}

func (r *fakeRecorder) TransportStateChanged(state string) {
	r.mu.Lock()
	r.transport = append(r.transport, state)
	r.mu.Unlock()
}

func (r *fakeRecorder) SessionStateChanged(state string) {
	r.mu.Lock()
	r.session = append(r.session, state)
	r.mu.Unlock()
}

type fakeObserver struct {
	mu    sync.Mutex
	kinds []string
	last  Event
}

func (o *fakeObserver) Notify(ev Event) {
	o.mu.Lock()
	o.kinds = append(o.kinds, ev.Kind)
	o.last = ev
	o.mu.Unlock()
}

func (o *fakeObserver) seen(kind string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, k := range o.kinds {
		if k == kind {
			n++
		}
	}
	return n
}

// =============================================================================
// Harness
// =============================================================================

func testConfig() Config {
	return Config{
		Host:              "broker.test",
		Port:              8883,
		ClientID:          "device-01",
		KeepAliveInterval: 20 * time.Second,
		ProbeTimeout:      5 * time.Second,
		ConnectWait:       5 * time.Second,
		ReconnectWait:     3 * time.Second,
	}
}

// harness runs the link's handlers synchronously on the test goroutine in
// virtual time, in the same order Run would.
type harness struct {
	t      *testing.T
	l      *Link
	clock  *fakeClock
	tr     *fakeTransport
	ss     *fakeSession
	rec    *fakeRecorder
	obs    *fakeObserver
	ticker Ticker
	start  time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	clock := newFakeClock()
	tr := newFakeTransport()
	ss := newFakeSession(tr)
	rec := &fakeRecorder{}
	obs := &fakeObserver{}

	l, err := New(testConfig(), tr, ss, WithClock(clock), WithRecorder(rec), WithObserver(obs))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	l.prepare()

	return &harness{t: t, l: l, clock: clock, tr: tr, ss: ss, rec: rec, obs: obs, start: clock.Now()}
}

// boot performs the initial connection and starts the keep-alive ticker.
func (h *harness) boot() {
	h.l.startInitialConnection()
	h.ticker = h.clock.NewTicker(h.l.cfg.KeepAliveInterval)
	h.settle()
}

// settle handles queued events and pending ticks until nothing is left.
func (h *harness) settle() {
	for {
		h.l.drain()
		select {
		case at := <-h.ticker.C():
			h.l.dispatch(event{kind: evKeepAliveTick, at: at})
		default:
			return
		}
	}
}

// at advances virtual time to offset (from boot) in one-second steps.
func (h *harness) at(offset time.Duration) {
	h.t.Helper()
	target := h.start.Add(offset)
	for h.clock.Now().Before(target) {
		h.clock.Advance(time.Second)
		h.settle()
	}
}

func (h *harness) snapshot() Snapshot {
	return h.l.Snapshot()
}
