package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"chatrelay/pkg/logger"
)

const version = "0.1.0"

var globalConfigPathOverride string

func main() {
	// A local .env is optional; real deployments set the environment.
	_ = godotenv.Load()

	globalConfigPathOverride = detectConfigPathFromArgs(os.Args)

	for _, arg := range os.Args {
		if arg == "--debug" || arg == "-d" {
			logger.SetLevel(logger.DEBUG)
			break
		}
	}

	os.Args = normalizeCLIArgs(os.Args)

	if len(os.Args) < 2 {
		printHelp()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "serve":
		serveCmd()
	case "config":
		configCmd()
	case "version", "--version", "-v":
		fmt.Printf("chatrelay v%s\n", version)
	case "help", "--help", "-h":
		printHelp()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printHelp()
		os.Exit(1)
	}
}
