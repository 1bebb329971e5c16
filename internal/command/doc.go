// Package command implements the command orchestrator.
//
// The orchestrator validates parameter records, enforces the software safety
// limit, calls the stimulator adapter under per-call deadlines, keeps the device
// record current and writes one audit entry per operation. Calls are serialized:
// there is one device and at most one proxy process at a time.
package command
