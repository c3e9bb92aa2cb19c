package main

import (
	"os"

	"taskflow/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
