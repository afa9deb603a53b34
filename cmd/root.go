// Package cmd contains the aegis command line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "aegis",
	Short: "Aegis - security boundary for LLM agent tools",
	Long: `Aegis validates paths, sanitizes untrusted input, and rate limits
tool calls before they reach the filesystem or an interpreter.

Run 'aegis mcp' to expose the secured file tools over the Model Context
Protocol, or 'aegis check' to validate inputs ad hoc from the shell.`,
	SilenceUsage: true,
}

// Execute is the main entry point for the aegis CLI application.
func Execute() error {
	return rootCmd.Execute()
}
