package main

import (
	"os"

	"github.com/moolen/insight/cmd/insight/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
