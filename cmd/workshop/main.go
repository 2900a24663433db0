// Package main is the entry point for the workshop CLI.
package main

import (
	"errors"
	"fmt"
	"os"

	"fantaco-agents/cmd/workshop/app"
)

func main() {
	if err := app.NewRootCmd().Execute(); err != nil {
		var exitErr *app.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
