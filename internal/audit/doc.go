// Package audit implements the append-only action log.
//
// Every upload, trigger, enable change and state read is written as one JSON
// line with user, device, parameters, outcome and latency. Files are rotated
// by size and age through lumberjack.
package audit
