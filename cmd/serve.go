package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start an MCP server exposing the locator as tools",
	Long: `Start a Model Context Protocol (MCP) server so AI agents can drive the
locator directly: navigate a headless browser, find needle images on the page,
take screenshots and wait for downloads.

Supported transports:
  stdio             Standard I/O (default, for MCP clients)
  streamable-http   Streamable HTTP transport (for remote agents)

Examples:
  vision-bot serve
  vision-bot serve --transport streamable-http --port 8080`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("transport", "stdio", "Transport: stdio, streamable-http")
	serveCmd.Flags().Int("port", 8080, "HTTP port for streamable-http transport")
}

func runServe(cmd *cobra.Command, args []string) error {
	transport, _ := cmd.Flags().GetString("transport")
	port, _ := cmd.Flags().GetInt("port")

	srv := newMCPServer(cfg, logger)
	defer srv.close()

	if err := srv.serve(transport, port); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}
