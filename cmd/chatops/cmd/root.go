package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configDir string

var rootCmd = &cobra.Command{
	Use:           "chatops",
	Short:         "Seller-account chat automation for second-hand marketplace listings",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "config", "directory containing app.yaml")

	rootCmd.AddCommand(
		publishCmd, polishCmd, priceCmd, delistCmd, relistCmd,
		analyticsCmd, accountsCmd, messagesCmd, moduleCmd, quoteCmd, doctorCmd,
	)
}

// Execute runs the CLI; the caller is responsible for rendering a
// returned error as {"error": "..."} and exiting non-zero.
func Execute() error {
	return rootCmd.Execute()
}

// emitJSON writes v to stdout as one indented JSON document, the contract
// every subcommand follows.
func emitJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
