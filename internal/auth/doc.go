// Package auth validates bearer tokens for serve mode.
//
// Tokens carry roles (viewer, operator) and scopes (read, stimulate). Viewers
// may read device state; only tokens with the stimulate scope may upload
// parameters or trigger pulses. A middleware without a verifier lets every
// request through, which is how a loopback-only server runs.
package auth
