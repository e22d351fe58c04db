package link

import (
	"sync"
	"time"

	"github.com/nerrad567/brokerlink/internal/session"
	"github.com/nerrad567/brokerlink/internal/transport"
)

type eventKind int

const (
	evTransportConnected eventKind = iota
	evTransportEncrypted
	evTransportDisconnected
	evTransportError
	evSessionConnected
	evSessionDisconnected
	evSessionStateChanged
	evSessionErrorChanged
	evProbeResponse
	evKeepAliveTick
	evProbeDeadline
)

var eventNames = [...]string{
	evTransportConnected:    "transport.connected",
	evTransportEncrypted:    "transport.encrypted",
	evTransportDisconnected: "transport.disconnected",
	evTransportError:        "transport.error",
	evSessionConnected:      "session.connected",
	evSessionDisconnected:   "session.disconnected",
	evSessionStateChanged:   "session.state_changed",
	evSessionErrorChanged:   "session.error_changed",
	evProbeResponse:         "probe.response",
	evKeepAliveTick:         "probe.tick",
	evProbeDeadline:         "probe.deadline",
}

func (k eventKind) String() string {
	if k < 0 || int(k) >= len(eventNames) {
		return "unknown"
	}
	return eventNames[k]
}

// event is one input to the state machine.
type event struct {
	kind eventKind
	at   time.Time

	transportCode transport.ErrorCode
	sessionState  session.State
	sessionCode   session.ErrorCode
	err           error

	// cycle identifies the probe a deadline belongs to.
	cycle   uint64
	probeID string
}

// transitions maps every event onto its handler. All handlers run on the
// event loop goroutine.
var transitions = map[eventKind]func(*Link, event){
	evTransportConnected:    (*Link).onTransportConnected,
	evTransportEncrypted:    (*Link).onTransportEncrypted,
	evTransportDisconnected: (*Link).onTransportDisconnected,
	evTransportError:        (*Link).onTransportError,
	evSessionConnected:      (*Link).onSessionConnected,
	evSessionDisconnected:   (*Link).onSessionDisconnected,
	evSessionStateChanged:   (*Link).onSessionStateChanged,
	evSessionErrorChanged:   (*Link).onSessionErrorChanged,
	evProbeResponse:         (*Link).onProbeResponse,
	evKeepAliveTick:         (*Link).onKeepAliveTick,
	evProbeDeadline:         (*Link).onProbeDeadline,
}

// queue is an unbounded FIFO of events. push never blocks, so collaborators
// may report events while the loop itself is calling into them.
type queue struct {
	mu    sync.Mutex
	items []event
	ready chan struct{}
}

func newQueue() *queue {
	return &queue{ready: make(chan struct{}, 1)}
}

func (q *queue) push(ev event) {
	q.mu.Lock()
	q.items = append(q.items, ev)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// next pops the oldest event.
func (q *queue) next() (event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return event{}, false
	}
	ev := q.items[0]
	q.items[0] = event{}
	q.items = q.items[1:]
	return ev, true
}

// transportSink turns transport callbacks into events.
type transportSink struct{ l *Link }

func (s transportSink) OnConnected()    { s.l.post(event{kind: evTransportConnected}) }
func (s transportSink) OnEncrypted()    { s.l.post(event{kind: evTransportEncrypted}) }
func (s transportSink) OnDisconnected() { s.l.post(event{kind: evTransportDisconnected}) }

func (s transportSink) OnError(code transport.ErrorCode, err error) {
	s.l.post(event{kind: evTransportError, transportCode: code, err: err})
}

// sessionSink turns session callbacks into events.
type sessionSink struct{ l *Link }

func (s sessionSink) OnConnected() { s.l.post(event{kind: evSessionConnected}) }

func (s sessionSink) OnProbeResponse(probeID string) {
	s.l.post(event{kind: evProbeResponse, probeID: probeID})
}

func (s sessionSink) OnDisconnected(err error) {
	s.l.post(event{kind: evSessionDisconnected, err: err})
}

func (s sessionSink) OnStateChanged(state session.State) {
	s.l.post(event{kind: evSessionStateChanged, sessionState: state})
}

func (s sessionSink) OnErrorChanged(code session.ErrorCode) {
	s.l.post(event{kind: evSessionErrorChanged, sessionCode: code})
}
