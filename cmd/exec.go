package cmd

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/curaious/warden/internal/config"
	"github.com/curaious/warden/pkg/sandbox"
	"github.com/spf13/cobra"
)

var (
	execProject string
	execWorkdir string
)

var execCmd = &cobra.Command{
	Use:   "exec -- <command> [args...]",
	Short: "Run a command in a project's sandbox",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		conf := config.ReadConfig()

		if execProject == "" {
			log.Fatalln("--project is required")
		}

		manager, err := newManager(conf)
		if err != nil {
			log.Fatalln(err.Error())
		}

		ctx := context.Background()
		handle, err := manager.Get(ctx, execProject)
		if err != nil {
			log.Fatalln(err.Error())
		}
		if handle == nil {
			log.Fatalf("no active sandbox for project %s", execProject)
		}

		result, err := handle.Exec(ctx, args, sandbox.ExecOptions{WorkingDir: execWorkdir})
		if err != nil {
			log.Fatalln(err.Error())
		}

		fmt.Fprint(os.Stdout, result.Stdout)
		fmt.Fprint(os.Stderr, result.Stderr)
		os.Exit(result.ExitCode)
	},
}

func init() {
	execCmd.Flags().StringVar(&execProject, "project", "", "project id owning the sandbox")
	execCmd.Flags().StringVar(&execWorkdir, "workdir", "", "working directory for the command")
	rootCmd.AddCommand(execCmd)
}
