package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfigWatcher_PublishesReloadedConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lumen.toml")
	if err := os.WriteFile(path, []byte("[log]\nlevel = \"debug\"\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cw, err := NewConfigWatcher(path)
	if err != nil {
		t.Fatalf("watcher: %v", err)
	}
	defer cw.Close()

	if err := os.WriteFile(path, []byte("[background]\ncycle_length = 42\n"), 0644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-cw.Updates():
			// a truncate may surface as an intermediate reload of the defaults
			if cfg.Background.CycleLength == 42 {
				return
			}
		case <-deadline:
			t.Fatal("timeout waiting for reloaded config")
		}
	}
}

func TestConfigWatcher_IgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lumen.toml")
	if err := os.WriteFile(path, []byte(""), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cw, err := NewConfigWatcher(path)
	if err != nil {
		t.Fatalf("watcher: %v", err)
	}
	defer cw.Close()

	if err := os.WriteFile(filepath.Join(dir, "other.toml"), []byte("[background]\ncycle_length = 7\n"), 0644); err != nil {
		t.Fatalf("write sibling: %v", err)
	}

	select {
	case cfg := <-cw.Updates():
		t.Fatalf("expected no update, got %+v", cfg.Background)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestConfigWatcher_CloseIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lumen.toml")
	if err := os.WriteFile(path, []byte(""), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cw, err := NewConfigWatcher(path)
	if err != nil {
		t.Fatalf("watcher: %v", err)
	}
	if err := cw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := cw.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
