package link

import "github.com/nerrad567/brokerlink/internal/session"

// onKeepAliveTick starts a probe cycle: clear the liveness flag, send a probe
// and arm the deadline. The probe is attempted whatever the session state;
// an unsendable probe simply goes unanswered.
func (l *Link) onKeepAliveTick(ev event) {
	l.responded = false
	l.cycle++
	l.probeSentAt = ev.at

	id, err := l.session.SendProbe()
	l.probeID = id
	if err != nil {
		l.logger.Debug("liveness probe not sent", "cycle", l.cycle, "error", err)
	} else {
		l.recorder.ProbeSent()
		l.status.update(func(s *Snapshot) {
			s.ProbesSent++
			s.LastProbeAt = ev.at
		})
		l.diag("liveness probe sent", "cycle", l.cycle, "probe_id", id)
	}

	cycle := l.cycle
	l.clock.AfterFunc(l.cfg.ProbeTimeout, func() {
		l.post(event{kind: evProbeDeadline, cycle: cycle})
	})
}

// onProbeResponse records that the current probe was answered. A response
// arriving after the deadline has no further effect, and an acknowledgement
// of an earlier cycle's probe is ignored.
func (l *Link) onProbeResponse(ev event) {
	if ev.probeID == "" || ev.probeID != l.probeID {
		l.logger.Debug("stale probe acknowledgement ignored",
			"probe_id", ev.probeID,
			"cycle", l.cycle,
		)
		return
	}
	if l.responded {
		return
	}
	l.responded = true

	rtt := ev.at.Sub(l.probeSentAt)
	l.recorder.ProbeAnswered(rtt)
	l.status.update(func(s *Snapshot) {
		s.ProbesAnswered++
		s.LastResponseAt = ev.at
		s.LastRTT = rtt.String()
	})
	l.diag("liveness probe answered", "cycle", l.cycle, "rtt", rtt)
}

// onProbeDeadline resolves a probe cycle. Without a response, the transport
// is reconnected only if it is not in a live state.
func (l *Link) onProbeDeadline(ev event) {
	// A deadline handled after the next tick belongs to a finished cycle.
	if ev.cycle != l.cycle || l.responded {
		return
	}

	state := l.transport.State()
	sessErr := l.session.Error()
	l.recorder.ProbeTimedOut(state.String())
	l.status.update(func(s *Snapshot) {
		s.ProbeTimeouts++
		if sessErr != session.ErrorNone {
			s.LastSessionError = sessErr.String()
		}
	})

	if state.IsLive() {
		l.logger.Info("liveness probe timed out, transport still up",
			"cycle", ev.cycle,
			"transport_state", state.String(),
			"session_error", sessErr.String(),
		)
		return
	}

	l.reconnectTransport()
}
