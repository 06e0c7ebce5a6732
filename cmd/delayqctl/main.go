// Command delayqctl is the operator CLI for the exact-tier schema and its
// daily partitions.
package main

import (
	"os"

	"github.com/pterm/pterm"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		pterm.Error.Println(err.Error())
		os.Exit(1)
	}
}
