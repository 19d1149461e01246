package main

import (
	"log"

	"github.com/spf13/pflag"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "optional YAML file with configuration keys")
	pflag.Parse()

	if err := run(*configPath); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}
