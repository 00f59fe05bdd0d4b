// Package main is the entrypoint for the leibridge CLI.
package main

import "github.com/leibridge/leibridge/internal/cli"

func main() {
	cli.Execute()
}
