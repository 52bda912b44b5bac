package main

import (
	"os"

	"github.com/openprocure/rfp-pilot/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
