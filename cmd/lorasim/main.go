// Command lorasim is a harness for manually exercising the scenarios of
// spec §8 end-to-end: N simulated nodes running the full routing engine
// wired over the in-memory radio bus (package radio), with no real
// hardware involved. It is a harness, not a production tool — analogous to
// the way the teacher repo's transport/serial is driven from a small
// command during manual bring-up, generalized here into a first-class
// cobra command tree since this system has no other CLI surface.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "lorasim",
		Short: "Simulate a LoRa mesh routing core over an in-memory radio bus",
	}
	root.AddCommand(newRunCmd())
	root.AddCommand(newTopologyCmd())
	return root
}
