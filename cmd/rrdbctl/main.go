// Command rrdbctl is the command-line front end for rrdb: database
// creation and updates, fetch/dump/restore, and the two long-running
// daemons (the update-cache and the query API).
package main

import (
	"fmt"
	"os"

	"github.com/wellsgz/rrdb/cmd/rrdbctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "rrdbctl: %v\n", err)
		os.Exit(1)
	}
}
