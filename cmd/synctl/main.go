// Command synctl wires a fake/local File API and SQLite Item Store for
// manual exercise of the sync engine. It is NOT an application front
// end — it exists only as the ambient entry point a real notes
// application would embed the engine into, the way the teacher's
// main.go/root.go exist alongside its cobra command tree.
package main

import (
	"os"

	"github.com/mattn/go-isatty"
)

// isInteractive reports whether stdout is a terminal. No command
// consults it: printReport always writes the report as JSON.
func isInteractive() bool {
	return isatty.IsTerminal(os.Stdout.Fd())
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
