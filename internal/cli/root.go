// Package cli wires the conveyr commands.
package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// version can be overridden at build time via:
	// go build -ldflags "-X github.com/conveyr/conveyr/internal/cli.version=1.2.3"
	version = "0.4.0"
	logo    = "\n" +
		"   ___ ___  _ ____   _____ _   _ _ __\n" +
		"  / __/ _ \\| '_ \\ \\ / / _ \\ | | | '__|\n" +
		" | (_| (_) | | | \\ V /  __/ |_| | |\n" +
		"  \\___\\___/|_| |_|\\_/ \\___|\\__, |_|\n" +
		"                           |___/\n"
)

var rootCmd = &cobra.Command{
	Use:   "conveyr",
	Short: "Conveyr - pipeline task handoff engine",
	Long:  color.CyanString(logo) + "\nA claim/submission/handoff coordinator for pipeline agents.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func printHeader(title string) {
	fmt.Println(color.CyanString(logo))
	if title == "" {
		return
	}
	fmt.Println(title)
	fmt.Println(strings.Repeat("─", len([]rune(title))+2))
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(taskCmd)
}
