package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"path/filepath"
	"testing"
)

func TestRun(t *testing.T) {
	t.Run("No Arguments Prints Usage", func(t *testing.T) {
		if err := run(context.Background(), nil); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})

	t.Run("Version", func(t *testing.T) {
		if err := run(context.Background(), []string{"version"}); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})

	t.Run("Unknown Command", func(t *testing.T) {
		if err := run(context.Background(), []string{"backup"}); err == nil {
			t.Error("expected error for unknown command")
		}
	})

	t.Run("Subcommand Help", func(t *testing.T) {
		err := run(context.Background(), []string{"sync", "-h"})
		if !errors.Is(err, flag.ErrHelp) {
			t.Errorf("expected flag.ErrHelp, got %v", err)
		}
	})

	t.Run("Init Then Sync", func(t *testing.T) {
		src := t.TempDir()
		target := filepath.Join(t.TempDir(), "mirror")
		if err := os.WriteFile(filepath.Join(src, "a.txt"), []byte("a"), 0644); err != nil {
			t.Fatal(err)
		}
		if err := run(context.Background(), []string{"init", "-source", src, "-target", target}); err != nil {
			t.Fatalf("init failed: %v", err)
		}
		if err := run(context.Background(), []string{"sync", "-target", target, "-log-level", "warn"}); err != nil {
			t.Fatalf("sync failed: %v", err)
		}
		if _, err := os.Stat(filepath.Join(target, "a.txt")); err != nil {
			t.Errorf("expected mirrored file: %v", err)
		}
	})

	t.Run("Canceled Sync Fails", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := run(ctx, []string{"sync", "-source", t.TempDir(), "-target", filepath.Join(t.TempDir(), "mirror")})
		if err == nil {
			t.Error("expected error for a canceled sync")
		}
	})
}
