package main

import (
	"fmt"
	"os"

	"github.com/turtacn/wmswitch/internal/cli"
	"github.com/turtacn/wmswitch/pkg/logger"
)

// Set with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Error("Panic recovered", "panic", r, "version", version)
			os.Exit(2)
		}
	}()

	if err := cli.Execute(version); err != nil {
		fmt.Fprintln(os.Stderr, "wmswitch:", err)
		os.Exit(1)
	}
}

// Personal.AI order the ending
