package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wayfarer-labs/wayfarer/internal/cli"
	"github.com/wayfarer-labs/wayfarer/internal/cli/admin"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "wayfarerd",
		Short: "Wayfarer daemon and CLI",
		Long:  "Wayfarer daemon for running the travel answer server and loading datasets",
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.LoadCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
