package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"text/tabwriter"

	"github.com/curaious/warden/internal/config"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List managed sandboxes",
	Run: func(cmd *cobra.Command, args []string) {
		conf := config.ReadConfig()

		manager, err := newManager(conf)
		if err != nil {
			log.Fatalln(err.Error())
		}

		infos, err := manager.List(context.Background())
		if err != nil {
			log.Fatalln(err.Error())
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tPROJECT\tSTATUS\tPOD\tCREATED")
		for _, info := range infos {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				info.Name, info.ProjectID, info.Status, info.PodName,
				info.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
