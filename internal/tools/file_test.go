package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/koopa0/aegis/internal/security"
)

func newTestToolset(t *testing.T, baseDir string) *FileToolset {
	t.Helper()

	pathVal, err := security.NewPathValidator(security.PathConfig{
		AllowedBasePaths: []string{baseDir},
	})
	if err != nil {
		t.Fatalf("NewPathValidator: %v", err)
	}
	san, err := security.NewSanitizer(security.SanitizerConfig{})
	if err != nil {
		t.Fatalf("NewSanitizer: %v", err)
	}
	fs, err := NewFileToolset(pathVal, san, testLogger())
	if err != nil {
		t.Fatalf("NewFileToolset: %v", err)
	}
	return fs
}

func TestNewFileToolsetRequiresDependencies(t *testing.T) {
	if _, err := NewFileToolset(nil, nil, testLogger()); err == nil {
		t.Error("nil path validator accepted")
	}
}

func TestReadFile(t *testing.T) {
	tmpDir := t.TempDir()
	fs := newTestToolset(t, tmpDir)
	ctx := context.Background()

	path := filepath.Join(tmpDir, "notes.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Run("success", func(t *testing.T) {
		res, err := fs.ReadFile(ctx, ReadFileInput{Path: path})
		if err != nil {
			t.Fatalf("ReadFile returned Go error: %v", err)
		}
		if res.Status != StatusSuccess {
			t.Fatalf("status = %v, error = %+v", res.Status, res.Error)
		}
		data := res.Data.(map[string]any)
		if data["content"] != "hello" {
			t.Errorf("content = %v, want hello", data["content"])
		}
		if data["size"] != 5 {
			t.Errorf("size = %v, want 5", data["size"])
		}
	})

	t.Run("not found", func(t *testing.T) {
		res, err := fs.ReadFile(ctx, ReadFileInput{Path: filepath.Join(tmpDir, "missing.txt")})
		if err != nil {
			t.Fatalf("ReadFile returned Go error: %v", err)
		}
		if res.Status != StatusError || res.Error.Code != ErrCodeNotFound {
			t.Errorf("result = %+v, want NotFound", res)
		}
	})

	t.Run("traversal rejected", func(t *testing.T) {
		res, err := fs.ReadFile(ctx, ReadFileInput{Path: "../../../etc/passwd"})
		if err != nil {
			t.Fatalf("ReadFile returned Go error: %v", err)
		}
		if res.Status != StatusError || res.Error.Code != ErrCodeSecurity {
			t.Errorf("result = %+v, want SecurityError", res)
		}
	})

	t.Run("outside base rejected", func(t *testing.T) {
		outside := filepath.Join(t.TempDir(), "other.txt")
		if err := os.WriteFile(outside, []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
		res, _ := fs.ReadFile(ctx, ReadFileInput{Path: outside})
		if res.Status != StatusError || res.Error.Code != ErrCodeSecurity {
			t.Errorf("result = %+v, want SecurityError", res)
		}
	})
}

func TestWriteFile(t *testing.T) {
	tmpDir := t.TempDir()
	fs := newTestToolset(t, tmpDir)
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		path := filepath.Join(tmpDir, "out.txt")
		res, err := fs.WriteFile(ctx, WriteFileInput{Path: path, Content: "written"})
		if err != nil {
			t.Fatalf("WriteFile returned Go error: %v", err)
		}
		if res.Status != StatusSuccess {
			t.Fatalf("status = %v, error = %+v", res.Status, res.Error)
		}
		got, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != "written" {
			t.Errorf("file content = %q, want written", got)
		}
	})

	t.Run("dangerous extension rejected", func(t *testing.T) {
		res, _ := fs.WriteFile(ctx, WriteFileInput{
			Path:    filepath.Join(tmpDir, "payload.exe"),
			Content: "x",
		})
		if res.Status != StatusError || res.Error.Code != ErrCodeSecurity {
			t.Errorf("result = %+v, want SecurityError", res)
		}
	})

	t.Run("missing parent rejected", func(t *testing.T) {
		res, _ := fs.WriteFile(ctx, WriteFileInput{
			Path:    filepath.Join(tmpDir, "nodir", "out.txt"),
			Content: "x",
		})
		if res.Status != StatusError || res.Error.Code != ErrCodeSecurity {
			t.Errorf("result = %+v, want SecurityError", res)
		}
	})
}

func TestListFiles(t *testing.T) {
	tmpDir := t.TempDir()
	fs := newTestToolset(t, tmpDir)
	ctx := context.Background()

	if err := os.WriteFile(filepath.Join(tmpDir, "a.txt"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(tmpDir, "sub"), 0o750); err != nil {
		t.Fatal(err)
	}

	res, err := fs.ListFiles(ctx, ListFilesInput{Path: tmpDir})
	if err != nil {
		t.Fatalf("ListFiles returned Go error: %v", err)
	}
	if res.Status != StatusSuccess {
		t.Fatalf("status = %v, error = %+v", res.Status, res.Error)
	}

	data := res.Data.(map[string]any)
	if data["count"] != 2 {
		t.Errorf("count = %v, want 2", data["count"])
	}
	types := map[string]string{}
	for _, e := range data["entries"].([]map[string]any) {
		types[e["name"].(string)] = e["type"].(string)
	}
	if types["a.txt"] != entryTypeFile {
		t.Errorf("a.txt type = %q, want %q", types["a.txt"], entryTypeFile)
	}
	if types["sub"] != entryTypeDirectory {
		t.Errorf("sub type = %q, want %q", types["sub"], entryTypeDirectory)
	}
}

func TestDeleteFile(t *testing.T) {
	tmpDir := t.TempDir()
	fs := newTestToolset(t, tmpDir)
	ctx := context.Background()

	path := filepath.Join(tmpDir, "doomed.txt")
	if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	res, err := fs.DeleteFile(ctx, DeleteFileInput{Path: path})
	if err != nil {
		t.Fatalf("DeleteFile returned Go error: %v", err)
	}
	if res.Status != StatusSuccess {
		t.Fatalf("status = %v, error = %+v", res.Status, res.Error)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("file still exists after delete")
	}

	res, _ = fs.DeleteFile(ctx, DeleteFileInput{Path: path})
	if res.Status != StatusError || res.Error.Code != ErrCodeNotFound {
		t.Errorf("second delete = %+v, want NotFound", res)
	}
}

func TestGetFileInfo(t *testing.T) {
	tmpDir := t.TempDir()
	fs := newTestToolset(t, tmpDir)
	ctx := context.Background()

	path := filepath.Join(tmpDir, "info.txt")
	if err := os.WriteFile(path, []byte("12345"), 0o600); err != nil {
		t.Fatal(err)
	}

	res, err := fs.GetFileInfo(ctx, GetFileInfoInput{Path: path})
	if err != nil {
		t.Fatalf("GetFileInfo returned Go error: %v", err)
	}
	if res.Status != StatusSuccess {
		t.Fatalf("status = %v, error = %+v", res.Status, res.Error)
	}

	data := res.Data.(map[string]any)
	if data["name"] != "info.txt" {
		t.Errorf("name = %v, want info.txt", data["name"])
	}
	if data["size"] != int64(5) {
		t.Errorf("size = %v, want 5", data["size"])
	}
	if data["is_dir"] != false {
		t.Errorf("is_dir = %v, want false", data["is_dir"])
	}
}
