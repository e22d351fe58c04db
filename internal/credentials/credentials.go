package credentials

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
)

// Domain-specific errors for credential loading.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrCARequired is returned when no CA bundle is referenced.
	ErrCARequired = errors.New("credentials: ca file required")

	// ErrKeyPairRequired is returned when the certificate or key is missing.
	ErrKeyPairRequired = errors.New("credentials: certificate and key files required")

	// ErrInvalidCA is returned when the CA bundle contains no usable certificate.
	ErrInvalidCA = errors.New("credentials: no certificates found in ca file")

	// ErrInvalidKeyPair is returned when the certificate and key do not load as a pair.
	ErrInvalidKeyPair = errors.New("credentials: invalid certificate/key pair")

	// ErrUnsupportedVersion is returned for an unknown TLS version constraint.
	ErrUnsupportedVersion = errors.New("credentials: unsupported tls version")
)

// Files references the three PEM files that make up the client identity.
type Files struct {
	CAFile   string
	CertFile string
	KeyFile  string
}

// Load reads the referenced files and builds a client TLS configuration.
//
// version constrains the negotiated protocol: "1.2" and "1.3" pin that exact
// version, "auto" allows TLS 1.2 and newer.
func Load(files Files, version string) (*tls.Config, error) {
	if files.CAFile == "" {
		return nil, ErrCARequired
	}
	if files.CertFile == "" || files.KeyFile == "" {
		return nil, ErrKeyPairRequired
	}

	minVersion, maxVersion, err := parseVersion(version)
	if err != nil {
		return nil, err
	}

	caPEM, err := os.ReadFile(files.CAFile)
	if err != nil {
		return nil, fmt.Errorf("reading ca file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCA, files.CAFile)
	}

	cert, err := tls.LoadX509KeyPair(files.CertFile, files.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKeyPair, err)
	}

	return &tls.Config{
		RootCAs:      pool,
		Certificates: []tls.Certificate{cert},
		MinVersion:   minVersion,
		MaxVersion:   maxVersion,
	}, nil
}

// parseVersion maps a version constraint onto tls.Config bounds.
// A zero maximum leaves the upper bound to crypto/tls.
func parseVersion(version string) (uint16, uint16, error) {
	switch version {
	case "1.2", "":
		return tls.VersionTLS12, tls.VersionTLS12, nil
	case "1.3":
		return tls.VersionTLS13, tls.VersionTLS13, nil
	case "auto":
		return tls.VersionTLS12, 0, nil
	default:
		return 0, 0, fmt.Errorf("%w: %q", ErrUnsupportedVersion, version)
	}
}

// Logger defines the logging interface for the credential store.
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

// Store holds the current TLS configuration and replaces it on Reload.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - TLSConfig always returns a clone; callers may modify it freely.
type Store struct {
	files   Files
	version string
	logger  Logger
	current atomic.Pointer[tls.Config]
	reloads atomic.Uint64
}

// NewStore loads the credentials once and returns a store serving them.
func NewStore(files Files, version string) (*Store, error) {
	cfg, err := Load(files, version)
	if err != nil {
		return nil, err
	}

	s := &Store{
		files:   files,
		version: version,
		logger:  noopLogger{},
	}
	s.current.Store(cfg)
	return s, nil
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// Files returns the file references the store was created with.
func (s *Store) Files() Files {
	return s.files
}

// TLSConfig returns a copy of the current TLS configuration.
func (s *Store) TLSConfig() (*tls.Config, error) {
	cfg := s.current.Load()
	if cfg == nil {
		return nil, ErrKeyPairRequired
	}
	return cfg.Clone(), nil
}

// Reload re-reads the files. On failure the previous material stays active.
func (s *Store) Reload() error {
	cfg, err := Load(s.files, s.version)
	if err != nil {
		return err
	}
	s.current.Store(cfg)
	s.reloads.Add(1)
	return nil
}

// Reloads returns how many successful reloads happened since creation.
func (s *Store) Reloads() uint64 {
	return s.reloads.Load()
}
