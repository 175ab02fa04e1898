// Command engine is the admin CLI for the execution engine: it runs the
// worker pool, manages the store schema, and lets an operator inspect or
// nudge a single execution by hand. There is no HTTP/API front-end here —
// every subcommand talks to the store and queue directly.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
