// Package stimulator defines the DS8R parameter record and the stimulator adapter interface.
//
// Adapters hand a validated Parameters record to the vendor proxy, which owns the
// device protocol. The IStimulatorAdapter interface is the only contract the rest of
// the module depends on; vendor failures are normalized to INVALID_RANGE, BUSY,
// UNAVAILABLE and INTERNAL.
package stimulator
