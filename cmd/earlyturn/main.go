// Command earlyturn adds early warning CoursePoints to TCX course files so
// that a turn is announced a few trackpoints before it is reached.
package main

import (
	"fmt"
	"os"
	"time"
)

// module defs - Version and BuildDate can be set at build time via ldflags
var (
	Version   string = "0.0.1"
	BuildDate string = "unknown"

	AppName string = "earlyturn"
)

// SessionStart names the log file of this invocation.
var SessionStart = time.Now()

func main() {
	app := newApp(os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
