package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/harun/craftpilot/internal/cli"
	"github.com/harun/craftpilot/pkg/controlloop"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)

		// Distinguish a lost game session from a bad invocation.
		var fault *controlloop.SessionFault
		if errors.As(err, &fault) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
