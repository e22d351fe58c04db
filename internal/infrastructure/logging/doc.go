// Package logging provides structured logging for brokerlink.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Thread-safe for concurrent use
//
// # Configuration
//
// Logging is configured via the LoggingConfig in the config file:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("connecting to broker", "host", host, "port", 8883)
//	logger.Error("handshake failed", "error", err)
//
// # Security
//
// Never log private key material or telemetry tokens. Credential
// references are logged as paths only; attributes named token, password or
// private_key are redacted by the handler.
package logging
