package main

import (
	"github.com/spf13/cobra"

	"github.com/itesm-showroom/showroom/internal/mcpserver"
)

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the conversation tools over MCP on stdin/stdout",
		Long: `Serve the ask, key_points, set_context, history and usage tools to an MCP
client over stdio. Logs go to stderr so they never corrupt the protocol stream.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := runtime(cmd)
			if err != nil {
				return err
			}
			defer closeRuntime(rt)

			srv := mcpserver.New(rt.Engine, rt.Store, version, rt.Logger)
			return srv.Serve(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}
