// Command ds8r controls a Digitimer DS8R current stimulator through the vendor proxy.
//
// Usage:
//
//	ds8r [-config file] [-proxy cmd] [-dll path] [-dry-run] <verb> [flags]
//
// Verbs: run [-force], upload, trigger, state, enable, disable, validate,
// serve [-addr], tui, version.
package main

import (
	"os"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

// Exit codes
const (
	ExitOK          = 0
	ExitUsage       = 2
	ExitInvalid     = 3
	ExitDeviceError = 4
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
