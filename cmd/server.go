package cmd

import (
	"github.com/spf13/cobra"
	"narration-pipeline/config"
	server2 "narration-pipeline/server"
)

func server(config *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "start http server",
		Run: func(cmd *cobra.Command, args []string) {
			server2.RunHttp(config)
		},
	}
}
