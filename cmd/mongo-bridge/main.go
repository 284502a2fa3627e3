// Package main is the entry point for the mongo-bridge binary.
package main

import (
	"os"

	"mongo-bridge/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
