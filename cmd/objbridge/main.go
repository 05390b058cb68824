// Command objbridge runs the reference remote object server and inspects the classes a
// server exposes.
//
// Usage:
//
//	objbridge [--config FILE] [-v] <command> [args]
//
// Commands:
//
//	serve    - Serve the demo classes
//	inspect  - Print the synthesized proxy type of a remote class
package main

import (
	"fmt"
	"os"

	"objbridge/cmd/objbridge/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
