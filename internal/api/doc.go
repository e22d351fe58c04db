// Package api implements the local status server for brokerlink.
//
// This package provides:
//   - GET /api/v1/health: process health, whether the session is up and
//     whether telemetry is reachable
//   - GET /api/v1/status: the link snapshot (states, probe counters, last RTT)
//   - GET /api/v1/metrics: runtime statistics and liveness counters
//   - GET /api/v1/ws: WebSocket feed of lifecycle events
//   - Middleware stack (request ID, logging, recovery)
//
// # WebSocket Feed
//
// Each connection first receives a "status" event carrying the current
// snapshot, then one "event" message per handled link event. Clients filter
// by family with the channels query parameter or subscribe messages:
//
//	{"type":"subscribe","id":"1","payload":{"channels":["probe"]}}
//
// The Hub implements link.Observer and never blocks the link: a client whose
// buffer is full misses events.
//
// # Security
//
// The server is read-only and unauthenticated. It binds to 127.0.0.1 by
// default and should not be exposed beyond the host.
package api
