// Package config loads the controller configuration.
//
// Sources are applied in order: built-in defaults, ds8r.yaml in the working
// directory, the file named by -config or DS8R_CONFIG, DS8R_* environment
// variables, and finally command flags applied by the caller. The merged result
// is checked with Validate.
package config
