// Command sizehist reports a logarithmic histogram of file sizes below one or more directories.
package main

import (
	"fmt"
	"os"

	"github.com/idelchi/sizehist/internal/cli"
)

// version is set at build time.
var version = "unknown"

func main() {
	if err := cli.New(version).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
