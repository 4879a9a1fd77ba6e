package main

import (
	"os"
)

func main() {
	// Cobra prints the error itself.
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
