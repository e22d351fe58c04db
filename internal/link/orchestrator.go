package link

import (
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/brokerlink/internal/session"
	"github.com/nerrad567/brokerlink/internal/transport"
)

// startInitialConnection opens the transport once at startup. If the
// handshake does not finish within ConnectWait the loop starts anyway; the
// attempt keeps running and reports through events.
func (l *Link) startInitialConnection() {
	l.logger.Info("connecting to broker",
		"host", l.cfg.Host,
		"port", l.cfg.Port,
		"client_id", l.cfg.ClientID,
	)

	if err := l.connectAndWait(l.cfg.ConnectWait); err != nil {
		l.logger.Warn("broker handshake not complete, continuing",
			"wait", l.cfg.ConnectWait,
			"code", waitErrorCode(err).String(),
			"error", err,
		)
	}
}

// connectAndWait starts an encrypted connect and blocks the loop for at most
// d waiting for it. It is the only place the loop blocks on the network.
func (l *Link) connectAndWait(d time.Duration) error {
	l.transport.ConnectEncrypted(l.cfg.Host, l.cfg.Port)
	if err := l.transport.WaitForEncrypted(d); err != nil {
		return fmt.Errorf("waiting for encryption: %w", err)
	}
	return nil
}

// reconnectTransport re-establishes a transport that is down. A transport in
// a live state is left alone: the probe may simply be slow.
func (l *Link) reconnectTransport() {
	state := l.transport.State()
	if state.IsLive() {
		l.logger.Debug("transport still live, not reconnecting", "transport_state", state.String())
		return
	}

	l.status.update(func(s *Snapshot) { s.Reconnects++ })
	l.logger.Warn("liveness probe unanswered, reconnecting transport",
		"transport_state", state.String(),
	)

	l.transport.Flush()
	l.transport.Disconnect()

	err := l.connectAndWait(l.cfg.ReconnectWait)
	l.recorder.ReconnectAttempted(err)
	if err != nil {
		l.logger.Warn("transport reconnect not complete",
			"wait", l.cfg.ReconnectWait,
			"code", waitErrorCode(err).String(),
			"error", err,
		)
		return
	}
	l.logger.Info("transport reconnected")
}

// onTransportEncrypted (re)opens the session. Encryption completing is the
// only trigger for a session connect.
func (l *Link) onTransportEncrypted(event) {
	l.diag("transport encrypted")

	if l.session.State() == session.StateConnected {
		l.logger.Info("closing previous session before reconnecting")
		l.session.Disconnect()
	}

	// The event may be stale by the time it is handled.
	if state := l.transport.State(); state != transport.StateEncrypted {
		l.logger.Debug("transport no longer encrypted, session not started", "transport_state", state.String())
		return
	}

	if err := l.session.Connect(); err != nil {
		l.logger.Warn("session connect failed", "error", err)
	}
}

func (l *Link) onTransportConnected(event) {
	l.diag("transport connected")
}

func (l *Link) onTransportDisconnected(event) {
	l.diag("transport disconnected")
}

func (l *Link) onTransportError(ev event) {
	l.status.update(func(s *Snapshot) { s.LastTransportError = ev.transportCode.String() })
	l.diag("transport error", "code", ev.transportCode.String(), "error", ev.err)
}

func (l *Link) onSessionConnected(event) {
	l.logger.Info("broker session established", "client_id", l.cfg.ClientID)
}

func (l *Link) onSessionDisconnected(ev event) {
	if ev.err != nil {
		l.logger.Warn("broker session lost", "error", ev.err)
		return
	}
	l.diag("broker session closed")
}

func (l *Link) onSessionStateChanged(ev event) {
	l.diag("session state changed", "state", ev.sessionState.String())
}

func (l *Link) onSessionErrorChanged(ev event) {
	l.status.update(func(s *Snapshot) { s.LastSessionError = ev.sessionCode.String() })
	if ev.sessionCode != session.ErrorNone {
		l.logger.Warn("session error", "code", ev.sessionCode.String())
		return
	}
	l.diag("session error cleared")
}

// waitErrorCode names the failure behind a bounded wait.
func waitErrorCode(err error) transport.ErrorCode {
	if errors.Is(err, transport.ErrWaitTimeout) {
		return transport.ErrorSocketTimeout
	}
	return transport.Classify(err)
}
