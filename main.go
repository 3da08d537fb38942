package main

import (
	"fmt"
	"os"

	"tripsync/cmd"
)

func main() {
	if err := cmd.RootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "tripsync: %v\n", err)
		os.Exit(1)
	}
}
