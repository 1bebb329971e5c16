package stimulator

import (
	"errors"
	"fmt"
	"strings"
)

// Normalized errors shared by every adapter.
var (
	ErrInvalidRange = errors.New("INVALID_RANGE")
	ErrBusy         = errors.New("BUSY")
	ErrUnavailable  = errors.New("UNAVAILABLE")
	ErrInternal     = errors.New("INTERNAL")
)

// VendorMap defines the error token mapping for a specific vendor.
type VendorMap struct {
	Range       []string // Tokens that map to INVALID_RANGE
	Busy        []string // Tokens that map to BUSY
	Unavailable []string // Tokens that map to UNAVAILABLE
}

// DefaultVendorID names the table used for unknown vendor IDs.
const DefaultVendorID = "ds8r"

// VendorErrorMappings contains the deterministic error mapping tables for all vendors.
//
// Current DS8R proxy tokens:
//   - Range: PARAMETER_OUT_OF_RANGE, INVALID_ARGUMENT, INVALID_PARAMETER, BAD_DEMAND,
//     BAD_PULSE_WIDTH
//   - Busy: DEVICE_BUSY, IN_USE, TIMEOUT, LOCKED
//   - Unavailable: DEVICE_NOT_FOUND, DLL_NOT_FOUND, NOT_CONNECTED, USB_ERROR, NO_DEVICE,
//     OPEN_FAILED
//
// Unknown tokens map to INTERNAL. Unknown vendor IDs use the DS8R table.
var VendorErrorMappings = map[string]VendorMap{
	"ds8r": {
		Range: []string{
			"PARAMETER_OUT_OF_RANGE",
			"INVALID_ARGUMENT",
			"INVALID_PARAMETER",
			"BAD_DEMAND",
			"BAD_PULSE_WIDTH",
		},
		Busy: []string{
			"DEVICE_BUSY",
			"IN_USE",
			"TIMEOUT",
			"LOCKED",
		},
		Unavailable: []string{
			"DEVICE_NOT_FOUND",
			"DLL_NOT_FOUND",
			"NOT_CONNECTED",
			"USB_ERROR",
			"NO_DEVICE",
			"OPEN_FAILED",
		},
	},
}

// VendorError wraps a vendor error with its normalized code and opaque payload.
type VendorError struct {
	Code     error       // Normalized container code
	Original error       // Vendor error
	Details  interface{} // Vendor payload (opaque)
}

func (e *VendorError) Error() string {
	return fmt.Sprintf("%v (vendor: %v)", e.Code, e.Original)
}

func (e *VendorError) Unwrap() error {
	return e.Code
}

// NormalizeVendorErrorWithVendor maps vendor errors using specific vendor mapping tables.
func NormalizeVendorErrorWithVendor(vendorErr error, vendorPayload interface{}, vendorID string) error {
	if vendorErr == nil {
		return nil
	}

	// Already normalized, keep the original classification.
	var existing *VendorError
	if errors.As(vendorErr, &existing) {
		return existing
	}
	for _, code := range []error{ErrInvalidRange, ErrBusy, ErrUnavailable, ErrInternal} {
		if errors.Is(vendorErr, code) {
			return &VendorError{Code: code, Original: vendorErr, Details: vendorPayload}
		}
	}

	msg := vendorErr.Error()
	code := mapVendorErrorToCode(msg, vendorID)

	return &VendorError{
		Code:     code,
		Original: vendorErr,
		Details:  vendorPayload,
	}
}

// mapVendorErrorToCode maps a vendor error message to normalized error code using table-driven matching.
func mapVendorErrorToCode(msg string, vendorID string) error {
	vendorMap, exists := VendorErrorMappings[vendorID]
	if !exists {
		vendorMap = VendorErrorMappings[DefaultVendorID]
	}

	upperMsg := strings.ToUpper(msg)

	for _, token := range vendorMap.Range {
		if strings.Contains(upperMsg, strings.ToUpper(token)) {
			return ErrInvalidRange
		}
	}

	for _, token := range vendorMap.Busy {
		if strings.Contains(upperMsg, strings.ToUpper(token)) {
			return ErrBusy
		}
	}

	for _, token := range vendorMap.Unavailable {
		if strings.Contains(upperMsg, strings.ToUpper(token)) {
			return ErrUnavailable
		}
	}

	return ErrInternal
}
