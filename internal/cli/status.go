package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/conveyr/conveyr/internal/config"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("🏷️ Conveyr Version")
		fmt.Printf("Version: %s\n", version)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show system status",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("📊 Conveyr Status")
		fmt.Printf("Version: %s\n", version)

		configPath, err := config.ConfigPath()
		if err == nil {
			if _, err := os.Stat(configPath); err == nil {
				fmt.Println("Config:   ✓ Found (" + configPath + ")")
			} else {
				fmt.Println("Config:   ✗ Not found (defaults apply)")
			}
		}

		cfg, err := config.Load()
		if err != nil {
			fmt.Printf("Config:   ✗ Invalid: %v\n", err)
			return
		}
		if _, err := os.Stat(cfg.DBPath()); err == nil {
			fmt.Println("Database: ✓ " + cfg.DBPath())
		} else {
			fmt.Println("Database: ✗ Not initialized (run 'conveyr seed' first)")
		}
		if cfg.Paths.Pipeline != "" {
			if _, err := os.Stat(cfg.Paths.Pipeline); err == nil {
				fmt.Println("Pipeline: ✓ " + cfg.Paths.Pipeline)
			} else {
				fmt.Println("Pipeline: ✗ Missing (" + cfg.Paths.Pipeline + ")")
			}
		} else {
			fmt.Println("Pipeline: ✓ Built-in default")
		}
		if cfg.Kafka.Enabled {
			fmt.Printf("Kafka:    ✓ Enabled (%s)\n", cfg.Kafka.Topic)
		} else {
			fmt.Println("Kafka:    ✗ Disabled")
		}
	},
}
