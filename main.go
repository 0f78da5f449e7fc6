package main

import (
	"os"

	"speaktoheaven/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
