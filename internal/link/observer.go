package link

import (
	"sync"
	"time"
)

// Recorder receives liveness measurements, typically for a time-series sink.
// Calls are made from the event loop and must not block.
type Recorder interface {
	ProbeSent()
	ProbeAnswered(rtt time.Duration)
	ProbeTimedOut(transportState string)
	ReconnectAttempted(err error)
	TransportStateChanged(state string)
	SessionStateChanged(state string)
}

// Observer is notified after every handled event. Calls are made from the
// event loop and must not block.
type Observer interface {
	Notify(ev Event)
}

// Event describes one handled state machine input.
type Event struct {
	Kind     string    `json:"kind"`
	At       time.Time `json:"at"`
	Detail   string    `json:"detail,omitempty"`
	Snapshot Snapshot  `json:"snapshot"`
}

// Snapshot is a point-in-time view of the link.
type Snapshot struct {
	Running            bool      `json:"running"`
	TransportState     string    `json:"transport_state"`
	SessionState       string    `json:"session_state"`
	LastTransportError string    `json:"last_transport_error,omitempty"`
	LastSessionError   string    `json:"last_session_error,omitempty"`
	ProbesSent         uint64    `json:"probes_sent"`
	ProbesAnswered     uint64    `json:"probes_answered"`
	ProbeTimeouts      uint64    `json:"probe_timeouts"`
	Reconnects         uint64    `json:"reconnects"`
	LastProbeAt        time.Time `json:"last_probe_at,omitzero"`
	LastResponseAt     time.Time `json:"last_response_at,omitzero"`
	LastRTT            string    `json:"last_rtt,omitempty"`
}

// status guards the snapshot shared with other goroutines.
type status struct {
	mu   sync.RWMutex
	snap Snapshot
}

func (s *status) get() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

func (s *status) update(f func(*Snapshot)) {
	s.mu.Lock()
	f(&s.snap)
	s.mu.Unlock()
}

type noopRecorder struct{}

func (noopRecorder) ProbeSent()                   {}
func (noopRecorder) ProbeAnswered(time.Duration)  {}
func (noopRecorder) ProbeTimedOut(string)         {}
func (noopRecorder) ReconnectAttempted(error)     {}
func (noopRecorder) TransportStateChanged(string) {}
func (noopRecorder) SessionStateChanged(string)   {}

type noopObserver struct{}

func (noopObserver) Notify(Event) {}
