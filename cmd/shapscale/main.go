package main

import (
	"github.com/YuminosukeSato/shapscale/pkg/cli"
)

func main() {
	cli.Execute()
}
