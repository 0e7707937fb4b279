package main

import (
	"os"

	"github.com/m3rciful/paperbot/cmd/paperbot/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
