// Command dfgraph serves the dependency graphs of dataflow notebooks.
package main

import (
	"fmt"
	"os"
)

func main() {
	// Cobra handles parsing the arguments
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
