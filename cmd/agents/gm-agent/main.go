package main

import (
	"log"

	"xmtp-agents/gm-agent/internal/agents/gm-agent/app"
)

func main() {
	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
