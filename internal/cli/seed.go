package cli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Apply the pipeline definition (segments, rules, agents, preferences)",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("🌱 Conveyr Seed")
		rt, err := openRuntime()
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		defer rt.Close()

		if err := applyPipeline(rt.store, rt.pipeline); err != nil {
			fmt.Printf("Seed failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(color.GreenString("✓") + " Pipeline applied")
		fmt.Printf("  Segments:    %d\n", len(rt.pipeline.Segments))
		fmt.Printf("  Rules:       %d\n", len(rt.pipeline.Rules))
		fmt.Printf("  Preferences: %d\n", len(rt.pipeline.Preferences))
		fmt.Printf("  Agents:      %d\n", len(rt.pipeline.Agents))
	},
}
