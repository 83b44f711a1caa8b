// Command verstore ingests tabular files into a versioned store and queries,
// compares, rolls back and exports entity versions.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rpattn/verstore/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "verstore: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
