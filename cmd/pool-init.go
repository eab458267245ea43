package cmd

import (
	"context"
	"log"
	"os"

	"github.com/curaious/warden/internal/config"
	"github.com/curaious/warden/internal/telemetry"
	"github.com/spf13/cobra"
)

var poolInitCmd = &cobra.Command{
	Use:   "pool-init",
	Short: "Create or update the sandbox warm pool",
	Run: func(cmd *cobra.Command, args []string) {
		conf := config.ReadConfig()

		os.Setenv("OTEL_SERVICE_NAME", "warden-pool-init")

		shutdownTelemetry := telemetry.NewProvider(conf.OTEL_EXPORTER_OTLP_ENDPOINT)
		defer shutdownTelemetry()

		if !conf.WARM_POOL_ENABLED {
			log.Fatalln("WARM_POOL_ENABLED is not set")
		}

		manager, err := newManager(conf)
		if err != nil {
			log.Fatalln(err.Error())
		}

		ctx := context.Background()
		if conf.SANDBOX_IMAGE != "" {
			if err := manager.EnsureTemplate(ctx, conf.WARM_POOL_TEMPLATE, conf.SANDBOX_IMAGE); err != nil {
				log.Fatalln(err.Error())
			}
		}
		if err := manager.InitWarmPool(ctx); err != nil {
			log.Fatalln(err.Error())
		}

		log.Printf("warm pool %s ready (%d replicas)", conf.WARM_POOL_NAME, conf.WARM_POOL_REPLICAS)
	},
}

func init() {
	rootCmd.AddCommand(poolInitCmd)
}
