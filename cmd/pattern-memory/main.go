package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/rcliao/pattern-memory/internal/cli"
)

func main() {
	// Optional .env; real environment wins.
	_ = godotenv.Load()

	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
