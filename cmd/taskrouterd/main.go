// Command taskrouterd is the server and operator-tool entrypoint: `serve`
// runs the HTTP API and routing engine, `migrate` provisions a data
// directory standalone, `recover` runs the startup reconciliation sweep
// on demand, and `watch` opens the terminal dashboard.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "taskrouterd:", err)
		os.Exit(1)
	}
}
