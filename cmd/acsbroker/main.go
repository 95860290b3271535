package main

import (
	"os"

	"github.com/iqcloud/acsbroker/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
