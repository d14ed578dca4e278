// Command pointsledger runs the rewards points ledger server and client.
package main

import (
	"fmt"
	"os"

	"github.com/pointsledger/pointsledger/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
