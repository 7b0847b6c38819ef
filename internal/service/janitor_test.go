package service

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestTempJanitor_Sweep(t *testing.T) {
	dir := t.TempDir()
	stale := writeFixture(t, dir, "stale.jpg")
	fresh := writeFixture(t, dir, "fresh.jpg")
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatal(err)
	}

	j := NewTempJanitor(dir, time.Hour, nil)
	removed, err := j.Sweep()
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("Sweep() removed %d, want 1", removed)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale file survived")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Errorf("fresh file removed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "sub")); err != nil {
		t.Errorf("directory removed: %v", err)
	}
}

func TestTempJanitor_SweepMissingDir(t *testing.T) {
	j := NewTempJanitor(filepath.Join(t.TempDir(), "absent"), time.Hour, nil)
	removed, err := j.Sweep()
	if err != nil || removed != 0 {
		t.Errorf("Sweep() = %d, %v; want 0, nil", removed, err)
	}
}

func TestTempJanitor_SweepSkipsWhileRunning(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "a.jpg")

	j := NewTempJanitor(dir, 0, nil)
	j.running.Store(true)

	removed, _ := j.Sweep()
	if removed != 0 || countFiles(t, dir) != 1 {
		t.Error("overlapping sweep touched the directory")
	}

	j.running.Store(false)
	if removed, _ := j.Sweep(); removed != 1 {
		t.Errorf("Sweep() removed %d, want 1", removed)
	}
}

func TestTempJanitor_Start(t *testing.T) {
	j := NewTempJanitor(t.TempDir(), time.Hour, nil)
	if err := j.Start("not a schedule"); err == nil {
		t.Error("Start() accepted an invalid schedule")
	}
	if err := j.Start("0 */10 * * * *"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	j.Stop()
}
