package cmd

import (
	"fmt"
	"log"
	"os"

	"M1Pose/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "m1pose_server",
	Short: "M1Pose is a motion comparison analysis service.",
	Run: func(cmd *cobra.Command, args []string) {
		log.Println("Starting M1Pose server...")
		// server.Start handles its own port and logging for startup.
		server.Start()
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
