// Package device keeps the record of the controlled DS8R.
//
// The manager owns the adapter for the single attached stimulator and tracks
// what the controller last told it and what it last reported back.
package device
