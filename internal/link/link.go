package link

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	"github.com/nerrad567/brokerlink/internal/session"
	"github.com/nerrad567/brokerlink/internal/transport"
)

// Transport is the secure transport the link drives.
// transport.Transport satisfies it.
type Transport interface {
	SetHandler(h transport.Handler)
	ConnectEncrypted(host string, port int)
	WaitForEncrypted(timeout time.Duration) error
	Disconnect()
	Flush()
	State() transport.State
	Open() (net.Conn, error)
}

// Session is the protocol session the link drives.
// session.Client satisfies it.
type Session interface {
	SetEndpoint(host string, port int)
	SetIdentity(clientID string)
	SetKeepAlive(d time.Duration)
	BindTransport(opener session.Opener)
	SetHandler(h session.Handler)
	Connect() error
	Disconnect()
	SendProbe() (string, error)
	State() session.State
	Error() session.ErrorCode
}

// Logger defines the logging interface for the link.
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

// Option configures a Link.
type Option func(*Link)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(l *Link) { l.clock = c }
}

// WithLogger sets the logger.
func WithLogger(logger Logger) Option {
	return func(l *Link) { l.logger = logger }
}

// WithRecorder sets the liveness measurement sink.
func WithRecorder(r Recorder) Option {
	return func(l *Link) { l.recorder = r }
}

// WithObserver sets the receiver of handled events.
func WithObserver(o Observer) Option {
	return func(l *Link) { l.observer = o }
}

// Link keeps one broker connection alive. It sequences transport and session
// establishment and probes the session periodically, reconnecting the
// transport when a probe goes unanswered and the transport is down.
//
// All decisions are made on the single goroutine running Run. Collaborator
// callbacks and timer expiries are queued as events and handled in order,
// so the state the loop owns needs no locking.
type Link struct {
	cfg       Config
	transport Transport
	session   Session

	clock    Clock
	logger   Logger
	recorder Recorder
	observer Observer

	queue   *queue
	running atomic.Bool
	status  status

	// Owned by the loop goroutine.
	responded     bool
	cycle         uint64
	probeID       string
	probeSentAt   time.Time
	lastTransport transport.State
	lastSession   session.State
}

// New creates a Link. Nothing is started until Run.
func New(cfg Config, t Transport, s Session, opts ...Option) (*Link, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if t == nil || s == nil {
		return nil, ErrMissingCollaborator
	}

	l := &Link{
		cfg:           cfg,
		transport:     t,
		session:       s,
		clock:         realClock{},
		logger:        noopLogger{},
		recorder:      noopRecorder{},
		observer:      noopObserver{},
		queue:         newQueue(),
		lastTransport: transport.StateUnconnected,
		lastSession:   session.StateDisconnected,
	}
	for _, opt := range opts {
		opt(l)
	}

	l.status.update(func(s *Snapshot) {
		s.TransportState = l.lastTransport.String()
		s.SessionState = l.lastSession.String()
	})

	return l, nil
}

// Snapshot returns the current link status. Safe to call from any goroutine.
func (l *Link) Snapshot() Snapshot {
	return l.status.get()
}

// Run connects and supervises the link until ctx is cancelled, then closes
// the session and the transport.
func (l *Link) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	l.status.update(func(s *Snapshot) { s.Running = true })
	defer l.status.update(func(s *Snapshot) { s.Running = false })

	l.prepare()
	l.startInitialConnection()
	l.drain()

	ticker := l.clock.NewTicker(l.cfg.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.shutdown()
			return nil
		case <-ticker.C():
			l.dispatch(event{kind: evKeepAliveTick, at: l.clock.Now()})
			l.drain()
		case <-l.queue.ready:
			l.drain()
		}
	}
}

// prepare wires the collaborators to the loop.
func (l *Link) prepare() {
	l.transport.SetHandler(transportSink{l})

	l.session.SetEndpoint(l.cfg.Host, l.cfg.Port)
	l.session.SetIdentity(l.cfg.ClientID)
	l.session.SetKeepAlive(l.cfg.KeepAliveInterval)
	l.session.BindTransport(l.transport)
	l.session.SetHandler(sessionSink{l})
}

// post queues an event. Safe to call from any goroutine.
func (l *Link) post(ev event) {
	if ev.at.IsZero() {
		ev.at = l.clock.Now()
	}
	l.queue.push(ev)
}

// drain handles queued events until the queue is empty.
func (l *Link) drain() {
	for {
		ev, ok := l.queue.next()
		if !ok {
			return
		}
		l.dispatch(ev)
	}
}

// dispatch runs the transition for one event and publishes the result.
func (l *Link) dispatch(ev event) {
	handle, ok := transitions[ev.kind]
	if !ok {
		l.logger.Error("unhandled link event", "kind", int(ev.kind))
		return
	}
	handle(l, ev)
	l.refresh()

	l.observer.Notify(Event{
		Kind:     ev.kind.String(),
		At:       ev.at,
		Detail:   detail(ev),
		Snapshot: l.status.get(),
	})
}

// refresh samples collaborator states into the snapshot.
func (l *Link) refresh() {
	ts := l.transport.State()
	ss := l.session.State()

	if ts != l.lastTransport {
		l.lastTransport = ts
		l.recorder.TransportStateChanged(ts.String())
	}
	if ss != l.lastSession {
		l.lastSession = ss
		l.recorder.SessionStateChanged(ss.String())
	}

	l.status.update(func(s *Snapshot) {
		s.TransportState = ts.String()
		s.SessionState = ss.String()
	})
}

// shutdown closes the session, then the transport.
func (l *Link) shutdown() {
	l.logger.Info("closing broker connection")
	l.session.Disconnect()
	l.transport.Flush()
	l.transport.Disconnect()
	l.drain()
}

// diag logs collaborator events at info with extended diagnostics and at
// debug otherwise.
func (l *Link) diag(msg string, args ...any) {
	if l.cfg.ExtendedDiagnostics {
		l.logger.Info(msg, args...)
		return
	}
	l.logger.Debug(msg, args...)
}

func detail(ev event) string {
	switch ev.kind {
	case evTransportError:
		return ev.transportCode.String()
	case evSessionStateChanged:
		return ev.sessionState.String()
	case evSessionErrorChanged:
		return ev.sessionCode.String()
	case evProbeResponse:
		return ev.probeID
	case evSessionDisconnected:
		if ev.err != nil {
			return ev.err.Error()
		}
	}
	return ""
}
