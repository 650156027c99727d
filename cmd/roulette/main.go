// Command roulette serves weighted random draws with per-user exclusion
// rules over HTTP and Discord.
package main

import (
	"context"
	"os"

	"github.com/roach88/roulette/internal/cli"
)

func main() {
	os.Exit(cli.Run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
