package main

import (
	"os"

	"github.com/dvloznov/smart-financial-parser/internal/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log := logger.New()
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}
