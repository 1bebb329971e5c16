// Command ds8r-proxy-mock stands in for the vendor D128RProxy executable.
package main

import (
	"fmt"
	"os"

	"github.com/timnaher/ds8r/internal/proxymock"
)

func main() {
	env, err := proxymock.EnvFromOS()
	if err != nil {
		fmt.Fprintf(os.Stderr, "INVALID_ARGUMENT: %v\n", err)
		os.Exit(proxymock.ExitBadInput)
	}
	os.Exit(proxymock.Main(os.Args[1:], env, os.Stdout, os.Stderr))
}
