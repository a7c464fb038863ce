package chrome

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func TestProcess_Close_RemovesProfileDir(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "profile")
	if err := os.MkdirAll(filepath.Join(dir, "Default"), 0o755); err != nil {
		t.Fatalf("failed to create profile dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "Default", "Preferences"), []byte("{}"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	p := &Process{profileDir: dir, log: zap.NewNop()}
	if err := p.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("profile dir still exists after close: %v", err)
	}
}

func TestProcess_Close_Idempotent(t *testing.T) {
	t.Parallel()

	p := &Process{profileDir: t.TempDir(), log: zap.NewNop()}
	if err := p.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestProcess_Pid_NoProcess(t *testing.T) {
	t.Parallel()

	p := &Process{log: zap.NewNop()}
	if pid := p.Pid(); pid != 0 {
		t.Errorf("expected pid 0 without process, got %d", pid)
	}
}
