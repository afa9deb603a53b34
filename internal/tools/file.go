package tools

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gofrs/flock"

	"github.com/koopa0/aegis/internal/log"
	"github.com/koopa0/aegis/internal/security"
)

// FileToolsetName is the registered name of the file toolset.
const FileToolsetName = "file"

// Entry type constants for ListFiles results.
const (
	entryTypeFile      = "file"
	entryTypeDirectory = "directory"
)

// MaxReadFileSize is the maximum file size allowed for ReadFile (10 MB).
// This prevents OOM when reading large files into memory.
const MaxReadFileSize = 10 * 1024 * 1024

// writeLockRetry is the poll interval while waiting for a write lock.
const writeLockRetry = 50 * time.Millisecond

// ReadFileInput defines input for the read_file tool.
type ReadFileInput struct {
	Path string `json:"path" jsonschema:"the file path to read (absolute or relative)"`
}

// WriteFileInput defines input for the write_file tool.
type WriteFileInput struct {
	Path    string `json:"path" jsonschema:"the file path to write"`
	Content string `json:"content" jsonschema:"the content to write to the file"`
}

// ListFilesInput defines input for the list_files tool.
type ListFilesInput struct {
	Path string `json:"path" jsonschema:"the directory path to list"`
}

// DeleteFileInput defines input for the delete_file tool.
type DeleteFileInput struct {
	Path string `json:"path" jsonschema:"the file path to delete"`
}

// GetFileInfoInput defines input for the get_file_info tool.
type GetFileInfoInput struct {
	Path string `json:"path" jsonschema:"the file path to get info for"`
}

// FileToolset provides the file operation tools. Every handler routes its
// path argument through the sanitizer and the path validator before touching
// the filesystem, and reports failures in-band via Result.
type FileToolset struct {
	pathVal *security.PathValidator
	san     *security.Sanitizer
	logger  log.Logger
}

// NewFileToolset creates a new FileToolset.
func NewFileToolset(pathVal *security.PathValidator, san *security.Sanitizer, logger log.Logger) (*FileToolset, error) {
	if pathVal == nil {
		return nil, fmt.Errorf("path validator is required")
	}
	if san == nil {
		return nil, fmt.Errorf("sanitizer is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &FileToolset{
		pathVal: pathVal,
		san:     san,
		logger:  logger,
	}, nil
}

// Name returns the toolset identifier.
func (*FileToolset) Name() string {
	return FileToolsetName
}

// authorize screens the raw path argument and resolves it to a safe
// absolute path for the given operation. The sanitizer pass catches
// injection-style garbage cheaply before the validator does filesystem work.
func (fs *FileToolset) authorize(rawPath string, op security.Operation) (string, *Result) {
	if _, err := fs.san.SanitizeString(rawPath, security.ContextPath, false); err != nil {
		res := errorResult(ErrCodeSecurity, fmt.Sprintf("path rejected: %v", err), nil)
		return "", &res
	}
	safePath, err := fs.pathVal.Validate(rawPath, op)
	if err != nil {
		res := errorResult(ErrCodeSecurity, fmt.Sprintf("path validation failed: %v", err), nil)
		return "", &res
	}
	return safePath, nil
}

// ReadFile reads and returns the complete content of a file with security validation.
// Uses os.Open + io.LimitReader for efficient single-pass I/O with defense-in-depth size limiting.
func (fs *FileToolset) ReadFile(_ context.Context, input ReadFileInput) (Result, error) {
	fs.logger.Info("ReadFile called", "path", input.Path)

	safePath, denied := fs.authorize(input.Path, security.OpRead)
	if denied != nil {
		return *denied, nil
	}

	// Open file for reading (single operation instead of separate Stat + ReadFile)
	file, err := os.Open(safePath) // #nosec G304 - path already validated by pathVal.Validate()
	if err != nil {
		if os.IsNotExist(err) {
			return errorResult(ErrCodeNotFound, "file not found", nil), nil
		}
		return errorResult(ErrCodeIO, fmt.Sprintf("unable to open file: %v", err), nil), nil
	}
	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		return errorResult(ErrCodeIO, fmt.Sprintf("unable to stat file: %v", err), nil), nil
	}

	if info.Size() > MaxReadFileSize {
		return errorResult(ErrCodeValidation,
			fmt.Sprintf("file size %d exceeds maximum allowed size %d bytes", info.Size(), MaxReadFileSize),
			map[string]any{"size": info.Size(), "max_size": MaxReadFileSize}), nil
	}

	// LimitReader as defense-in-depth (prevents reading more than MaxReadFileSize)
	content, err := io.ReadAll(io.LimitReader(file, MaxReadFileSize))
	if err != nil {
		return errorResult(ErrCodeIO, fmt.Sprintf("unable to read file: %v", err), nil), nil
	}

	return Result{
		Status:  StatusSuccess,
		Message: fmt.Sprintf("Successfully read file: %s", safePath),
		Data: map[string]any{
			"path":    safePath,
			"content": string(content),
			"size":    len(content),
		},
	}, nil
}

// WriteFile writes content to a file with security validation. An advisory
// file lock serializes writers of the same target across processes.
func (fs *FileToolset) WriteFile(ctx context.Context, input WriteFileInput) (Result, error) {
	fs.logger.Info("WriteFile called", "path", input.Path, "size", len(input.Content))

	safePath, denied := fs.authorize(input.Path, security.OpWrite)
	if denied != nil {
		return *denied, nil
	}

	lock := flock.New(safePath + ".lock")
	locked, err := lock.TryLockContext(ctx, writeLockRetry)
	if err != nil {
		return errorResult(ErrCodeTimeout, fmt.Sprintf("acquiring write lock: %v", err), nil), nil
	}
	if !locked {
		return errorResult(ErrCodeTimeout, "file is locked by another writer", nil), nil
	}
	defer func() { _ = lock.Unlock() }()

	// #nosec G304 - safePath is validated by pathVal.Validate() above
	file, err := os.OpenFile(safePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return errorResult(ErrCodeIO, fmt.Sprintf("unable to open file: %v", err), nil), nil
	}
	defer func() { _ = file.Close() }()

	if _, err := file.WriteString(input.Content); err != nil {
		return errorResult(ErrCodeIO, fmt.Sprintf("unable to write file: %v", err), nil), nil
	}

	// A successful write may change what a cached validation would see.
	fs.pathVal.Clear()

	return Result{
		Status:  StatusSuccess,
		Message: fmt.Sprintf("Successfully wrote file: %s", safePath),
		Data: map[string]any{
			"path": safePath,
			"size": len(input.Content),
		},
	}, nil
}

// ListFiles lists files in a directory.
func (fs *FileToolset) ListFiles(_ context.Context, input ListFilesInput) (Result, error) {
	fs.logger.Info("ListFiles called", "path", input.Path)

	safePath, denied := fs.authorize(input.Path, security.OpList)
	if denied != nil {
		return *denied, nil
	}

	entries, err := os.ReadDir(safePath)
	if err != nil {
		if os.IsNotExist(err) {
			return errorResult(ErrCodeNotFound, "directory not found", nil), nil
		}
		return errorResult(ErrCodeIO, fmt.Sprintf("unable to read directory: %v", err), nil), nil
	}

	files := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		entryType := entryTypeFile
		if entry.IsDir() {
			entryType = entryTypeDirectory
		}
		files = append(files, map[string]any{
			"name": entry.Name(),
			"type": entryType,
		})
	}

	return Result{
		Status:  StatusSuccess,
		Message: fmt.Sprintf("Successfully listed %d entries in: %s", len(files), safePath),
		Data: map[string]any{
			"path":    safePath,
			"entries": files,
			"count":   len(files),
		},
	}, nil
}

// DeleteFile permanently deletes a file with security validation.
func (fs *FileToolset) DeleteFile(_ context.Context, input DeleteFileInput) (Result, error) {
	fs.logger.Info("DeleteFile called", "path", input.Path)

	safePath, denied := fs.authorize(input.Path, security.OpDelete)
	if denied != nil {
		return *denied, nil
	}

	if err := os.Remove(safePath); err != nil {
		if os.IsNotExist(err) {
			return errorResult(ErrCodeNotFound, "file not found", nil), nil
		}
		return errorResult(ErrCodeIO, fmt.Sprintf("unable to delete file: %v", err), nil), nil
	}

	fs.pathVal.Clear()

	return Result{
		Status:  StatusSuccess,
		Message: fmt.Sprintf("Successfully deleted file: %s", safePath),
		Data: map[string]any{
			"path": safePath,
		},
	}, nil
}

// GetFileInfo gets file metadata.
func (fs *FileToolset) GetFileInfo(_ context.Context, input GetFileInfoInput) (Result, error) {
	fs.logger.Info("GetFileInfo called", "path", input.Path)

	safePath, denied := fs.authorize(input.Path, security.OpRead)
	if denied != nil {
		return *denied, nil
	}

	info, err := os.Stat(safePath)
	if err != nil {
		if os.IsNotExist(err) {
			return errorResult(ErrCodeNotFound, "file not found", nil), nil
		}
		return errorResult(ErrCodeIO, fmt.Sprintf("unable to get file information: %v", err), nil), nil
	}

	return Result{
		Status:  StatusSuccess,
		Message: fmt.Sprintf("Successfully retrieved file info: %s", safePath),
		Data: map[string]any{
			"name":        info.Name(),
			"size":        info.Size(),
			"is_dir":      info.IsDir(),
			"modified":    info.ModTime().Format("2006-01-02 15:04:05"),
			"permissions": info.Mode().String(),
		},
	}, nil
}
