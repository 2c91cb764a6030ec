package main

import (
	"github.com/devmetrics/gh-metrics-reporter/cmd"
	"github.com/joho/godotenv"
)

func main() {
	// A missing .env is fine; the token can come from the environment or a file.
	_ = godotenv.Load()

	cmd.Execute()
}
