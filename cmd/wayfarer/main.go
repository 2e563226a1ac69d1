package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wayfarer-labs/wayfarer/internal/cli"
	"github.com/wayfarer-labs/wayfarer/internal/cli/client"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "wayfarer",
		Short: "Wayfarer CLI - Vietnam travel answers",
		Long: `Wayfarer CLI asks a running wayfarerd for travel answers.

Environment variables:
  WAYFARER_API_URL   API base URL (default: http://localhost:8080)`,
		Version: version,
	}

	rootCmd.PersistentFlags().String("api-url", "", "API base URL (overrides env)")
	cli.AddHelpJSONFlag(rootCmd)

	rootCmd.AddCommand(client.AskCmd())

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
