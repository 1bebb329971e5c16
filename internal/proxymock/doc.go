// Package proxymock emulates the DS8R vendor proxy executable.
//
// Each invocation reads and writes a small JSON state file so that a "get"
// after a "set" reports the uploaded record, just like the real device keeps
// its settings between proxy calls. The mock speaks the same argument and
// stdout protocol as the vendor proxy:
//
//	[--dll <path>] set <mode> <polarity> <source> <demand> <pulse_width> <dwell> <recovery> <enabled>
//	[--dll <path>] trigger
//	[--dll <path>] get
//
// Environment knobs:
//
//	DS8R_MOCK_STATE        state file path (default: <tmp>/ds8r-proxy-mock.json)
//	DS8R_MOCK_FAULT        vendor token printed to stderr on every call, e.g. DEVICE_NOT_FOUND
//	DS8R_MOCK_RETURN_CODE  vendor return code reported on success (default 0)
//	DS8R_MOCK_DELAY        Go duration slept before answering
package proxymock
