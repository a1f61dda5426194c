package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/pb33f/logtracker/cmd"
)

func main() {
	// a missing .env is fine; real environment variables still apply
	_ = godotenv.Load()

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
