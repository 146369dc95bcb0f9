package main

import (
	"os"

	"github.com/lowc1012/window-log-limiter/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
