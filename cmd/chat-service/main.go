package main

import (
	"os"

	"github.com/loomchat/loom/server/chatservice"
)

func main() {
	if err := chatservice.Run(); err != nil {
		os.Exit(1)
	}
}
