// Package main provides the ctrlseed binary, which seeds a freshly installed
// controller with a test topology.
package main

import (
	"fmt"
	"os"

	"github.com/nextensio/ctrlseed/cmd/ctrlseed/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
