package main

import (
	"os"

	"occurcal/cmd/occurcal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
