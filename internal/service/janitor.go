package service

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/atomic"
)

// TempJanitor periodically deletes stale files from the staging directory,
// e.g. uploads left behind by a crashed process.
type TempJanitor struct {
	dir     string
	maxAge  time.Duration
	cron    *cron.Cron
	running atomic.Bool
	logger  *slog.Logger
	now     func() time.Time
}

// NewTempJanitor creates a janitor for dir
func NewTempJanitor(dir string, maxAge time.Duration, logger *slog.Logger) *TempJanitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &TempJanitor{
		dir:    dir,
		maxAge: maxAge,
		logger: logger.With("component", "temp_janitor"),
		now:    time.Now,
	}
}

// Start schedules Sweep using a six-field cron spec (seconds first)
func (j *TempJanitor) Start(schedule string) error {
	c := cron.New(cron.WithSeconds())
	if _, err := c.AddFunc(schedule, func() {
		removed, err := j.Sweep()
		if err != nil {
			j.logger.Error("temp sweep failed", "error", err)
			return
		}
		if removed > 0 {
			j.logger.Info("temp sweep finished", "removed", removed)
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule temp janitor: %w", err)
	}

	j.cron = c
	c.Start()
	j.logger.Info("temp janitor started", "schedule", schedule, "dir", j.dir, "max_age", j.maxAge)
	return nil
}

// Stop stops the schedule and waits for a running sweep
func (j *TempJanitor) Stop() {
	if j.cron == nil {
		return
	}
	<-j.cron.Stop().Done()
	j.logger.Info("temp janitor stopped")
}

// Sweep removes regular files older than maxAge. A sweep that starts while
// another is still running returns immediately.
func (j *TempJanitor) Sweep() (int, error) {
	if !j.running.CompareAndSwap(false, true) {
		return 0, nil
	}
	defer j.running.Store(false)

	entries, err := os.ReadDir(j.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read temp directory: %w", err)
	}

	cutoff := j.now().Add(-j.maxAge)
	removed := 0
	var errs []error
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(j.dir, entry.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}

	return removed, errors.Join(errs...)
}
