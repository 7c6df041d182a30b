package main

import (
	"fmt"
	"os"

	"github.com/benvon/zentask/cmd/configure/commands"
	"github.com/spf13/cobra"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "zentask-configure",
		Short: "Configuration tool for the ZenTask API",
		Long:  "CLI tool for inspecting and checking ZenTask server settings",
	}

	rootCmd.AddCommand(commands.NewShowCmd())
	rootCmd.AddCommand(commands.NewRatelimitCmd())
	rootCmd.AddCommand(commands.NewTestCmd())
	rootCmd.AddCommand(commands.NewTipsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
