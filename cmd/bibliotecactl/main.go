// Command bibliotecactl runs operator tasks against the library database:
// schema setup, administrator bootstrap, catalog seeding and reports.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
