package main

import (
	"context"
	"os"

	"lattice/api/internal/logger"
)

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		logger.FromEnv(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT")).Error("command failed", "error", err)
		os.Exit(1)
	}
}
