package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ondemand",
	Short: "Generate REST APIs for models defined at runtime",
	Long: `ondemand creates database tables and CRUD endpoints from model
definitions posted at runtime, and mounts them again on restart.

Quick start:
  ondemand serve                      # Start the server
  curl -X POST localhost:8000/rest/generate-rest-api -d @book.json

Tooling:
  ondemand validate book.yaml         # Check a model definition offline
  ondemand models                     # List stored models`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "ondemand.yaml", "config file path")
}
