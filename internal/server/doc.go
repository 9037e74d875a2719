// Package server provides the monitor HTTP server for a dispatch run.
//
// This package is internal to burstgate and handles all HTTP concerns of the
// optional monitor listener:
//
//   - Live page: the embedded outcome page at "/"
//   - REST API: JSON endpoint at "/api/outcomes" for the outcomes so far
//   - Server-Sent Events: live outcomes at "/api/sse"
//   - Metrics: Prometheus exposition at "/metrics"
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
package server
