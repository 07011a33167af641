// Package server hosts the Galleria API behind a single HTTP server.
//
// The server builds a consistent middleware chain of request IDs, logging,
// audit, metrics, rate limiting, and auth so handlers all share common
// protections and instrumentation. It serves the API routes and the uploads
// directory from one multiplexer.
package server
