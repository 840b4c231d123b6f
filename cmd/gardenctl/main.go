package main

import (
	"os"

	"github.com/bissquit/task-garden/cmd/gardenctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
