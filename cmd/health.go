package cmd

import (
	"context"
	"encoding/json"
	"log"
	"os"

	"github.com/curaious/warden/internal/config"
	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Report provider health as JSON",
	Run: func(cmd *cobra.Command, args []string) {
		conf := config.ReadConfig()

		manager, err := newManager(conf)
		if err != nil {
			log.Fatalln(err.Error())
		}

		health := manager.HealthCheck(context.Background())

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(health); err != nil {
			log.Fatalln(err.Error())
		}

		if !health.Healthy {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
