// Command pgproxy synchronizes local functions with plv8 procedures.
package main

import (
	"context"
	"os"

	"github.com/roach88/pgproxy/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background(), &cli.RootOptions{}, os.Args[1:], os.Stdout, os.Stderr))
}
