package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/koopa0/aegis/internal/config"
	"github.com/koopa0/aegis/internal/log"
	"github.com/koopa0/aegis/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server on stdio transport",
	Long: `Start a Model Context Protocol server exposing the secured file tools
(read_file, write_file, list_files, delete_file, get_file_info) over stdio.

Every tool call is path-validated, sanitized, and rate limited according to
the loaded configuration.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

// runMCP initializes and starts the MCP server on stdio transport.
func runMCP() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := log.New(log.Config{Level: cfg.Level(), JSON: cfg.LogJSON})
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("starting MCP server", "version", AppVersion)

	server, err := mcp.NewServer(mcp.Config{
		Name:            "aegis",
		Version:         AppVersion,
		PathPolicy:      cfg.PathPolicy(),
		SanitizerPolicy: cfg.SanitizerPolicy(),
		RateLimitPolicy: cfg.RateLimitPolicy(),
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	slog.Info("MCP server ready", "name", "aegis", "version", AppVersion, "transport", "stdio")

	if err := server.Run(ctx, &mcpsdk.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server error: %w", err)
	}

	slog.Info("MCP server shut down gracefully")
	return nil
}
