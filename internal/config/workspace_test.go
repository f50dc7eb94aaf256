package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeWorkspace(t *testing.T, root, content string) {
	t.Helper()
	wsDir := filepath.Join(root, WorkspaceDirName)
	if err := os.MkdirAll(wsDir, 0755); err != nil {
		t.Fatalf("failed to create workspace dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(wsDir, WorkspaceConfigFile), []byte(content), 0644); err != nil {
		t.Fatalf("failed to write workspace config: %v", err)
	}
}

func TestDiscoverWorkspace_Found(t *testing.T) {
	tmpDir := t.TempDir()
	writeWorkspace(t, tmpDir, "server:\n  name: test\n")

	result, err := DiscoverWorkspace(tmpDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != tmpDir {
		t.Errorf("expected %q, got %q", tmpDir, result)
	}
}

func TestDiscoverWorkspace_WalkUp(t *testing.T) {
	tmpDir := t.TempDir()
	writeWorkspace(t, tmpDir, "server:\n  name: test\n")

	nested := filepath.Join(tmpDir, "a", "b")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatalf("failed to create nested dirs: %v", err)
	}

	result, err := DiscoverWorkspace(nested)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != tmpDir {
		t.Errorf("expected %q, got %q", tmpDir, result)
	}
}

func TestDiscoverWorkspace_NotFound(t *testing.T) {
	tmpDir := t.TempDir()

	result, err := DiscoverWorkspace(tmpDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "" {
		t.Errorf("expected empty result, got %q", result)
	}
}

func TestLoadWithWorkspace_ExplicitDir(t *testing.T) {
	tmpDir := t.TempDir()
	writeWorkspace(t, tmpDir, "workflow:\n  max_load_more_clicks: 4\n")

	cfg, wsDir, err := LoadWithWorkspace("", WorkspaceOptions{ExplicitDir: tmpDir})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wsDir != tmpDir {
		t.Errorf("expected workspace dir %q, got %q", tmpDir, wsDir)
	}
	if cfg.Workflow.MaxLoadMoreClicks != 4 {
		t.Errorf("expected max load more clicks 4, got %d", cfg.Workflow.MaxLoadMoreClicks)
	}
}

func TestLoadWithWorkspace_Disabled(t *testing.T) {
	tmpDir := t.TempDir()
	writeWorkspace(t, tmpDir, "workflow:\n  max_load_more_clicks: 4\n")

	cfg, wsDir, err := LoadWithWorkspace("", WorkspaceOptions{Disable: true, ExplicitDir: tmpDir})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wsDir != "" {
		t.Errorf("expected no workspace, got %q", wsDir)
	}
	if cfg.Workflow.MaxLoadMoreClicks != 10 {
		t.Errorf("expected default max load more clicks, got %d", cfg.Workflow.MaxLoadMoreClicks)
	}
}

func TestLoadWithWorkspace_ExplicitConfigWins(t *testing.T) {
	tmpDir := t.TempDir()
	writeWorkspace(t, tmpDir, "workflow:\n  chunk_size: 6000\n")

	override := filepath.Join(t.TempDir(), "override.yaml")
	if err := os.WriteFile(override, []byte("workflow:\n  chunk_size: 9000\n"), 0644); err != nil {
		t.Fatalf("failed to write override config: %v", err)
	}

	cfg, _, err := LoadWithWorkspace(override, WorkspaceOptions{ExplicitDir: tmpDir})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Workflow.ChunkSize != 9000 {
		t.Errorf("expected explicit config to win with 9000, got %d", cfg.Workflow.ChunkSize)
	}
}

func TestLoadWithWorkspace_EnvOverridesAll(t *testing.T) {
	tmpDir := t.TempDir()
	writeWorkspace(t, tmpDir, "llm:\n  model: file-model\n  api_url: https://file.example.com/v1\n  api_key: file-key\n")

	t.Setenv(EnvLLMModel, "env-model")

	cfg, _, err := LoadWithWorkspace("", WorkspaceOptions{ExplicitDir: tmpDir})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.Model != "env-model" {
		t.Errorf("expected env model to win, got %q", cfg.LLM.Model)
	}
	if cfg.LLM.APIKey != "file-key" {
		t.Errorf("expected file key to survive, got %q", cfg.LLM.APIKey)
	}
}

func TestLoadWithWorkspace_ResolvesRelativePaths(t *testing.T) {
	tmpDir := t.TempDir()
	writeWorkspace(t, tmpDir, "artifacts:\n  dir: .reviewharvest/data/runs\nserver:\n  log_file: .reviewharvest/data/reviewharvest.log\n")

	cfg, _, err := LoadWithWorkspace("", WorkspaceOptions{ExplicitDir: tmpDir})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantDir := filepath.Join(tmpDir, ".reviewharvest", "data", "runs")
	if cfg.Artifacts.Dir != wantDir {
		t.Errorf("expected artifacts dir %q, got %q", wantDir, cfg.Artifacts.Dir)
	}
	wantLog := filepath.Join(tmpDir, ".reviewharvest", "data", "reviewharvest.log")
	if cfg.Server.LogFile != wantLog {
		t.Errorf("expected log file %q, got %q", wantLog, cfg.Server.LogFile)
	}
}

func TestInitWorkspace(t *testing.T) {
	tmpDir := t.TempDir()

	if err := InitWorkspace(tmpDir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	configPath := filepath.Join(tmpDir, WorkspaceDirName, WorkspaceConfigFile)
	if _, err := os.Stat(configPath); err != nil {
		t.Errorf("config template not created: %v", err)
	}
	gitignorePath := filepath.Join(tmpDir, WorkspaceDirName, ".gitignore")
	if _, err := os.Stat(gitignorePath); err != nil {
		t.Errorf(".gitignore not created: %v", err)
	}

	// Second init fails
	if err := InitWorkspace(tmpDir); err == nil {
		t.Error("expected error on repeated init")
	}
}
