// Command moard runs the Moard message board.
package main

import (
	"fmt"
	"os"
)

// Build information, set via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
