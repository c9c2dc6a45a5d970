// Package api is the HTTP client for the origin that hosts the relay.
//
// Endpoints:
//   - HEAD {status path}: liveness; any 2xx means the origin is up
//   - GET {snapshot prefix}{room}: {"timestamp": [ms, seq], "roots": {...}}
package api
