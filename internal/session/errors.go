package session

import (
	"errors"

	"github.com/eclipse/paho.mqtt.golang/packets"
)

// Domain-specific errors for session operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when a probe is requested without an open session.
	ErrNotConnected = errors.New("session: not connected")

	// ErrAlreadyConnected is returned when Connect is called on an open session.
	ErrAlreadyConnected = errors.New("session: already connected")

	// ErrNoTransport is returned when Connect is called before BindTransport.
	ErrNoTransport = errors.New("session: no transport bound")

	// ErrNoEndpoint is returned when Connect is called before SetEndpoint/SetIdentity.
	ErrNoEndpoint = errors.New("session: endpoint and client id required")

	// ErrConnectTimeout is reported when the broker does not acknowledge the
	// session in time.
	ErrConnectTimeout = errors.New("session: connect timed out")
)

// ErrorCode is the last session-level error, as reported by OnErrorChanged.
type ErrorCode int

const (
	ErrorNone ErrorCode = iota
	ErrorInvalidProtocolVersion
	ErrorIDRejected
	ErrorServerUnavailable
	ErrorBadUsernameOrPassword
	ErrorNotAuthorized
	ErrorTransportInvalid
	ErrorProtocolViolation
	ErrorUnknown
)

var errorCodeNames = [...]string{
	ErrorNone:                   "none",
	ErrorInvalidProtocolVersion: "invalid_protocol_version",
	ErrorIDRejected:             "id_rejected",
	ErrorServerUnavailable:      "server_unavailable",
	ErrorBadUsernameOrPassword:  "bad_username_or_password",
	ErrorNotAuthorized:          "not_authorized",
	ErrorTransportInvalid:       "transport_invalid",
	ErrorProtocolViolation:      "protocol_violation",
	ErrorUnknown:                "unknown",
}

func (c ErrorCode) String() string {
	if c < 0 || int(c) >= len(errorCodeNames) {
		return "unknown"
	}
	return errorCodeNames[c]
}

// codeFromReturn maps a CONNACK return code (or paho's internal failure
// codes) onto an ErrorCode.
func codeFromReturn(rc byte) ErrorCode {
	switch rc {
	case packets.Accepted:
		return ErrorNone
	case packets.ErrRefusedBadProtocolVersion:
		return ErrorInvalidProtocolVersion
	case packets.ErrRefusedIDRejected:
		return ErrorIDRejected
	case packets.ErrRefusedServerUnavailable:
		return ErrorServerUnavailable
	case packets.ErrRefusedBadUsernameOrPassword:
		return ErrorBadUsernameOrPassword
	case packets.ErrRefusedNotAuthorised:
		return ErrorNotAuthorized
	case packets.ErrNetworkError:
		return ErrorTransportInvalid
	case packets.ErrProtocolViolation:
		return ErrorProtocolViolation
	default:
		return ErrorUnknown
	}
}
