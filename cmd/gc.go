package cmd

import (
	"context"
	"log"
	"time"

	"github.com/curaious/warden/internal/config"
	"github.com/curaious/warden/pkg/sandbox"
	"github.com/spf13/cobra"
)

var (
	gcOlderThan time.Duration
	gcStatuses  []string
)

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Stop sandboxes matching the cleanup filter",
	Run: func(cmd *cobra.Command, args []string) {
		conf := config.ReadConfig()

		manager, err := newManager(conf)
		if err != nil {
			log.Fatalln(err.Error())
		}

		filter := sandbox.CleanupFilter{OlderThan: gcOlderThan}
		for _, s := range gcStatuses {
			filter.Statuses = append(filter.Statuses, sandbox.Status(s))
		}

		stopped, err := manager.Cleanup(context.Background(), filter)
		if err != nil {
			log.Fatalln(err.Error())
		}

		log.Printf("stopped %d sandboxes", stopped)
	},
}

func init() {
	gcCmd.Flags().DurationVar(&gcOlderThan, "older-than", 0, "only stop sandboxes created at least this long ago")
	gcCmd.Flags().StringSliceVar(&gcStatuses, "status", nil, "only stop sandboxes in these statuses (e.g. error,stopped)")
	rootCmd.AddCommand(gcCmd)
}
