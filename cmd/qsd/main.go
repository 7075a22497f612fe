package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "qsd",
		Short: "Batch command engine for Wikibase editing",
		Long: `qsd parses QuickStatements batches in line or grid notation, stores
them, and runs them against a Wikibase REST API. Batches are executed by
workers that claim them atomically, so several qsd processes can share
one database.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
