package main

import (
	"os"

	"github.com/loomchat/loom/server/ingestworker"
)

func main() {
	if err := ingestworker.Run(); err != nil {
		os.Exit(1)
	}
}
