package transport

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"syscall"
)

// Domain-specific errors for transport operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrWaitTimeout is returned when a bounded wait expires before the
	// handshake finished. The attempt itself keeps running.
	ErrWaitTimeout = errors.New("transport: timed out waiting for encryption")

	// ErrNotEncrypted is returned when the encrypted stream is requested
	// while the transport is not in the encrypted state.
	ErrNotEncrypted = errors.New("transport: not encrypted")

	// ErrNoAttempt is returned by WaitForEncrypted when nothing was started.
	ErrNoAttempt = errors.New("transport: no connection attempt in progress")

	// ErrClosed is returned when an attempt is superseded or the transport is
	// disconnected while waiting.
	ErrClosed = errors.New("transport: connection closed")
)

// ErrorCode classifies transport failures for logging and telemetry.
type ErrorCode int

const (
	ErrorNone ErrorCode = iota
	ErrorUnknown
	ErrorConnectionRefused
	ErrorRemoteHostClosed
	ErrorHostNotFound
	ErrorSocketTimeout
	ErrorNetwork
	ErrorHandshake
	ErrorCertificate
)

var errorCodeNames = [...]string{
	ErrorNone:              "none",
	ErrorUnknown:           "unknown",
	ErrorConnectionRefused: "connection_refused",
	ErrorRemoteHostClosed:  "remote_host_closed",
	ErrorHostNotFound:      "host_not_found",
	ErrorSocketTimeout:     "socket_timeout",
	ErrorNetwork:           "network",
	ErrorHandshake:         "handshake",
	ErrorCertificate:       "certificate",
}

func (c ErrorCode) String() string {
	if c < 0 || int(c) >= len(errorCodeNames) {
		return "unknown"
	}
	return errorCodeNames[c]
}

// Classify maps an error returned by the dialer, the TLS handshake or a
// read/write on the stream onto an ErrorCode.
func Classify(err error) ErrorCode {
	if err == nil {
		return ErrorNone
	}

	var (
		unknownAuthority x509.UnknownAuthorityError
		certInvalid      x509.CertificateInvalidError
		hostname         x509.HostnameError
		verifyErr        *tls.CertificateVerificationError
		recordErr        tls.RecordHeaderError
		alertErr         tls.AlertError
		dnsErr           *net.DNSError
		netErr           net.Error
	)

	switch {
	case errors.As(err, &unknownAuthority),
		errors.As(err, &certInvalid),
		errors.As(err, &hostname),
		errors.As(err, &verifyErr):
		return ErrorCertificate
	case errors.As(err, &recordErr), errors.As(err, &alertErr):
		return ErrorHandshake
	case errors.As(err, &dnsErr):
		return ErrorHostNotFound
	case errors.Is(err, syscall.ECONNREFUSED):
		return ErrorConnectionRefused
	case errors.Is(err, io.EOF), errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE):
		return ErrorRemoteHostClosed
	case errors.As(err, &netErr) && netErr.Timeout():
		return ErrorSocketTimeout
	case errors.As(err, &netErr):
		return ErrorNetwork
	default:
		return ErrorUnknown
	}
}
