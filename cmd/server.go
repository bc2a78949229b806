package cmd

import (
	"M1Pose/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动M1Pose服务器",
	Long:  `启动M1Pose动作对比系统的HTTP服务器，提供上传、分析与结果查询API`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
