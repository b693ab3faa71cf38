package main

import "github.com/variant-labs/variant-go/internal/cli"

func main() {
	cli.Execute()
}
