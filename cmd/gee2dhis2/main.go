package main

import (
	"fmt"
	"os"

	"gee2dhis2/cmd/gee2dhis2/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
