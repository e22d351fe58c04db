package link

import (
	"fmt"
	"time"
)

// Config is the connection configuration. It is fixed for the lifetime of a
// Link.
type Config struct {
	Host     string
	Port     int
	ClientID string

	// KeepAliveInterval is the period between liveness probes. It is also
	// the MQTT keep-alive of the session.
	KeepAliveInterval time.Duration

	// ProbeTimeout is how long a probe may go unanswered before the
	// transport is inspected.
	ProbeTimeout time.Duration

	// ConnectWait bounds the initial wait for encryption.
	ConnectWait time.Duration

	// ReconnectWait bounds the wait for encryption after a recovery reconnect.
	ReconnectWait time.Duration

	// ExtendedDiagnostics logs every transport and session event at info level.
	ExtendedDiagnostics bool
}

func (c Config) validate() error {
	switch {
	case c.Host == "":
		return fmt.Errorf("%w: host is required", ErrInvalidConfig)
	case c.Port < 1 || c.Port > 65535:
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port)
	case c.ClientID == "":
		return fmt.Errorf("%w: client id is required", ErrInvalidConfig)
	case c.KeepAliveInterval <= 0:
		return fmt.Errorf("%w: keep-alive interval must be positive", ErrInvalidConfig)
	case c.ProbeTimeout <= 0 || c.ProbeTimeout >= c.KeepAliveInterval:
		return fmt.Errorf("%w: probe timeout must be positive and shorter than the keep-alive interval", ErrInvalidConfig)
	case c.ConnectWait <= 0 || c.ReconnectWait <= 0:
		return fmt.Errorf("%w: connect waits must be positive", ErrInvalidConfig)
	}
	return nil
}
