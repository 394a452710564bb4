// veribatchd runs the verification batch daemon without the CLI wrapper.
package main

import (
	"context"
	"fmt"
	"os"

	"veribatch/internal/config"
	"veribatch/internal/daemonrun"
)

func main() {
	cfg, _, _, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
