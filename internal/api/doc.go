// Package api implements the HTTP surface of serve mode.
//
// Requests are translated into orchestrator calls; every response uses the
// same JSON envelope with a correlation ID. Stimulating endpoints require the
// stimulate scope when token verification is enabled.
package api
