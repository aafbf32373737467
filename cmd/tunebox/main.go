package main

import (
	"os"

	"github.com/xupit3r/tunebox/cmd/tunebox/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
