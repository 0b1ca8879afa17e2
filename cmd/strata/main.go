// Command strata inspects and migrates databases through strata adapters.
package main

import (
	"fmt"
	"os"

	"github.com/syssam/strata/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "strata:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
