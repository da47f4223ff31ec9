// Command deploy-queue mediates which deployments may run concurrently
// against a fleet of target cells, invoked once per verb from a CI
// workflow. See SPEC_FULL.md for the full protocol.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
