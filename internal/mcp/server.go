// Package mcp exposes the secured file tools over the Model Context
// Protocol. Every tool call flows through the dispatcher, so rate limiting
// and audit logging apply to MCP clients exactly as to in-process callers.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/koopa0/aegis/internal/log"
	"github.com/koopa0/aegis/internal/security"
	"github.com/koopa0/aegis/internal/tools"
)

// Tool names as exposed over MCP.
const (
	ToolReadFile    = "read_file"
	ToolWriteFile   = "write_file"
	ToolListFiles   = "list_files"
	ToolDeleteFile  = "delete_file"
	ToolGetFileInfo = "get_file_info"
)

// Server wraps the MCP SDK server around the dispatcher and file toolset.
type Server struct {
	mcpServer  *mcp.Server
	dispatcher *tools.Dispatcher
	name       string
	version    string

	// sessionID identifies this server process in the rate limiter and
	// audit trail. Stdio transport carries exactly one client session.
	sessionID string
}

// Config holds MCP server configuration.
type Config struct {
	Name    string
	Version string

	PathPolicy      security.PathConfig
	SanitizerPolicy security.SanitizerConfig
	RateLimitPolicy security.RateLimitConfig

	Logger log.Logger
}

// NewServer creates a new MCP server with the full security boundary wired
// in: path validation, input sanitization, and rate limiting.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("server name is required")
	}
	if cfg.Version == "" {
		return nil, fmt.Errorf("server version is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	pathVal, err := security.NewPathValidator(cfg.PathPolicy)
	if err != nil {
		return nil, fmt.Errorf("creating path validator: %w", err)
	}
	san, err := security.NewSanitizer(cfg.SanitizerPolicy)
	if err != nil {
		return nil, fmt.Errorf("creating sanitizer: %w", err)
	}
	limiter := security.NewRateLimiter(cfg.RateLimitPolicy)

	fileset, err := tools.NewFileToolset(pathVal, san, cfg.Logger.With("component", "file"))
	if err != nil {
		return nil, fmt.Errorf("creating file toolset: %w", err)
	}

	dispatcher, err := tools.NewDispatcher(limiter, cfg.Logger.With("component", "dispatch"))
	if err != nil {
		return nil, fmt.Errorf("creating dispatcher: %w", err)
	}
	if err := registerHandlers(dispatcher, fileset); err != nil {
		return nil, fmt.Errorf("registering handlers: %w", err)
	}

	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	s := &Server{
		mcpServer:  mcpServer,
		dispatcher: dispatcher,
		name:       cfg.Name,
		version:    cfg.Version,
		sessionID:  uuid.NewString(),
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("registering tools: %w", err)
	}

	return s, nil
}

// Run starts the MCP server on the given transport.
// This is a blocking call that handles all MCP protocol communication.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	return s.mcpServer.Run(ctx, transport)
}

// registerHandlers binds the file toolset methods into the dispatcher.
func registerHandlers(d *tools.Dispatcher, fs *tools.FileToolset) error {
	if err := tools.Register(d, ToolReadFile, fs.ReadFile); err != nil {
		return err
	}
	if err := tools.Register(d, ToolWriteFile, fs.WriteFile); err != nil {
		return err
	}
	if err := tools.Register(d, ToolListFiles, fs.ListFiles); err != nil {
		return err
	}
	if err := tools.Register(d, ToolDeleteFile, fs.DeleteFile); err != nil {
		return err
	}
	return tools.Register(d, ToolGetFileInfo, fs.GetFileInfo)
}

// registerTools registers all tools to the MCP server.
func (s *Server) registerTools() error {
	if err := addTool[tools.ReadFileInput](s, ToolReadFile,
		"Read the complete content of any text-based file. Supports absolute and relative paths. Validates paths for security."); err != nil {
		return err
	}
	if err := addTool[tools.WriteFileInput](s, ToolWriteFile,
		"Write or create any text-based file with the specified content. WARNING: This will overwrite existing files!"); err != nil {
		return err
	}
	if err := addTool[tools.ListFilesInput](s, ToolListFiles,
		"List all files and subdirectories in a directory."); err != nil {
		return err
	}
	if err := addTool[tools.DeleteFileInput](s, ToolDeleteFile,
		"Delete a file permanently from the filesystem. WARNING: This action is irreversible!"); err != nil {
		return err
	}
	return addTool[tools.GetFileInfoInput](s, ToolGetFileInfo,
		"Get detailed metadata about a file or directory without reading its content.")
}

// addTool infers the input schema from the struct and registers one tool.
// Direct handling in the handler (like net/http.Handler): the MCP response
// is built inline, no conversion layer.
func addTool[In any](s *Server, name, description string) error {
	inputSchema, err := jsonschema.For[In](nil)
	if err != nil {
		return fmt.Errorf("creating input schema for %s: %w", name, err)
	}

	tool := &mcp.Tool{
		Name:        name,
		Description: description,
		InputSchema: inputSchema,
	}

	mcp.AddTool(s.mcpServer, tool, func(ctx context.Context, req *mcp.CallToolRequest, in In) (*mcp.CallToolResult, any, error) {
		result, err := s.dispatcher.Dispatch(ctx, s.sessionID, name, in)
		if err != nil {
			// System error - propagate to MCP
			return nil, nil, fmt.Errorf("system error: %w", err)
		}

		if result.Status == tools.StatusError {
			errorText := fmt.Sprintf("Error [%s]: %s", result.Error.Code, result.Error.Message)
			if result.Error.Details != nil {
				detailsJSON, _ := json.Marshal(result.Error.Details)
				errorText += fmt.Sprintf("\nDetails: %s", string(detailsJSON))
			}
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: errorText}},
				IsError: true,
			}, nil, nil
		}

		payload, err := json.Marshal(result.Data)
		if err != nil {
			return nil, nil, fmt.Errorf("encoding result: %w", err)
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(payload)}},
		}, nil, nil
	})

	return nil
}
