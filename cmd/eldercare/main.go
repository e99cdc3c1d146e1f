// Command eldercare is a terminal client for the eldercare API. It keeps the
// login session in a local SQLite file so commands can be chained.
package main

import (
	"fmt"
	"os"
)

const (
	Version = "0.1.0"
	appName = "eldercare"
)

func main() {
	if err := newRootCmd(os.Stdin, os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
