// Package dashboard provides the embedded live outcome page for burstgate.
//
// The page is served at "/" by the monitor server while a run is in flight.
// It follows "/api/sse" and lists each outcome as it completes, with running
// success and failure totals. Embedding keeps the binary self-contained.
package dashboard

import "embed"

// Assets is an embedded filesystem containing the live outcome page.
//
// The filesystem structure is:
//
//	assets/
//	  index.html    - Outcome page with inline CSS and JavaScript
//
//go:embed assets/*
var Assets embed.FS
