// Command edurag is the entry point for the educational document retrieval
// service. It provides a CLI interface (via Cobra) for ingesting and
// searching documents, plus an HTTP server exposing the same operations.
package main

import (
	"fmt"
	"os"

	"github.com/edurag/edurag-go/cmd/edurag/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
