package main

import (
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve knowledge search over the Model Context Protocol",
	Long: `Starts an MCP server exposing the knowledge_search and list_collections
tools. It speaks JSON-RPC over stdio unless --addr is given, in which case
it serves streamable HTTP on that address.

Example client configuration:
  {
    "mcpServers": {
      "knowledge": {"command": "/path/to/llmctl", "args": ["mcp"]}
    }
  }`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		addr, err := cmd.Flags().GetString("addr")
		if err != nil {
			return err
		}
		if addr != "" {
			okColor.Fprintf(cmd.ErrOrStderr(), "MCP server listening on %s\n", addr)
			return container.MCPServer.RunHTTP(cmd.Context(), addr)
		}
		return container.MCPServer.Run(cmd.Context())
	},
}

func init() {
	mcpCmd.Flags().String("addr", "", "serve streamable HTTP on this address instead of stdio")
	rootCmd.AddCommand(mcpCmd)
}
