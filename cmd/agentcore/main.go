// Package main provides the entry point for the agentcore research-agent
// runtime.
package main

import (
	"fmt"
	"os"

	"github.com/GAIR-NLP/agentcore/cmd/agentcore/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
