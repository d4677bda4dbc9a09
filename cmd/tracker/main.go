// Tracker: local research-session recorder.
//
// A browser-extension companion streams navigation and search events to
// the tracker daemon, which records them into named sessions. The CLI
// manages, annotates, and exports those sessions.
//
// Usage:
//
//	tracker serve               # Start the daemon the extension connects to
//	tracker status              # Show recording state
//	tracker sessions            # List completed sessions
//	tracker export --id <id>    # Export a session as JSON or text
package main

import (
	"fmt"
	"os"

	"github.com/ant981228/research-tracker/internal/cli"
)

const version = "0.1.0"

func main() {
	if err := cli.Run(version); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
