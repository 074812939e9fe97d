package main

import (
	"os"

	"github.com/go-artifactdelivery/pkg/cli"
	"github.com/go-artifactdelivery/pkg/utils"
)

func main() {
	// Normalize boolean flags so forms like "--debug false" are treated as "--debug=false"
	args := utils.NormalizeBooleanFlags(os.Args, cli.BooleanFlags)
	os.Exit(cli.Execute(args[1:], os.Stdout, os.Stderr))
}
