package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/Love-M-365/Clario/companionservice"
)

func main() {
	// Optional .env for local development; real deployments set env vars.
	_ = godotenv.Load()

	if err := companionservice.Run(); err != nil {
		os.Exit(1)
	}
}
