// Package main is the entry point for the cutover binary.
package main

import (
	"os"

	"github.com/joho/godotenv"

	"cutover/pkg/cli"
)

func main() {
	// Missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()
	os.Exit(cli.Execute())
}
