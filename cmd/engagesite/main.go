// Command engagesite serves the Engage marketing site.
package main

import (
	"fmt"
	"os"

	"github.com/livetemplate/engagesite/cmd/engagesite/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
