package preflight

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulschiretz/pgl-sync/pkg/hints"
)

func TestCheckTargetAccessible(t *testing.T) {
	t.Run("Happy Path - Target Exists", func(t *testing.T) {
		if err := CheckTargetAccessible(t.TempDir()); err != nil {
			t.Errorf("expected no error for existing directory, but got: %v", err)
		}
	})

	t.Run("Happy Path - Target Does Not Exist, Parent Exists", func(t *testing.T) {
		targetDir := filepath.Join(t.TempDir(), "new_dir")
		if err := CheckTargetAccessible(targetDir); err != nil {
			t.Errorf("expected no error when parent exists, but got: %v", err)
		}
	})

	t.Run("Error - Parent Does Not Exist", func(t *testing.T) {
		targetDir := filepath.Join(t.TempDir(), "missing", "new_dir")
		err := CheckTargetAccessible(targetDir)
		if err == nil || !strings.Contains(err.Error(), "do not exist") {
			t.Errorf("expected error about missing parent, but got: %v", err)
		}
	})

	t.Run("Error - Target Is a File", func(t *testing.T) {
		targetFile := filepath.Join(t.TempDir(), "target.txt")
		if err := os.WriteFile(targetFile, []byte("i am a file"), 0644); err != nil {
			t.Fatalf("failed to create test file: %v", err)
		}
		err := CheckTargetAccessible(targetFile)
		if err == nil {
			t.Fatal("expected an error when target is a file, but got nil")
		}
		if !strings.Contains(err.Error(), "is not a directory") {
			t.Errorf("expected error to be about 'not a directory', but got: %v", err)
		}
	})
}

func TestCheckSourceAccessible(t *testing.T) {
	t.Run("Happy Path - Source is a directory", func(t *testing.T) {
		if err := CheckSourceAccessible(t.TempDir()); err != nil {
			t.Errorf("expected no error for existing directory, but got: %v", err)
		}
	})

	t.Run("Error - Source does not exist", func(t *testing.T) {
		err := CheckSourceAccessible(filepath.Join(t.TempDir(), "nonexistent"))
		if err == nil || !strings.Contains(err.Error(), "does not exist") {
			t.Errorf("expected error about non-existent source, but got: %v", err)
		}
	})

	t.Run("Error - Source is a file", func(t *testing.T) {
		srcFile := filepath.Join(t.TempDir(), "source.txt")
		if err := os.WriteFile(srcFile, []byte("i am a file"), 0644); err != nil {
			t.Fatalf("failed to create test file: %v", err)
		}
		err := CheckSourceAccessible(srcFile)
		if err == nil || !strings.Contains(err.Error(), "is not a directory") {
			t.Errorf("expected error about source not being a directory, but got: %v", err)
		}
	})
}

func TestCheckTargetWritable(t *testing.T) {
	targetDir := filepath.Join(t.TempDir(), "a", "b")
	if err := CheckTargetWritable(targetDir); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	entries, err := os.ReadDir(targetDir)
	if err != nil {
		t.Fatalf("expected target to be created: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected probe file to be removed, found %d entries", len(entries))
	}
}

func TestCheckPathNesting(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "src")
	dst := filepath.Join(base, "dst")

	testCases := []struct {
		name    string
		src     string
		dst     string
		trash   string
		wantErr string
	}{
		{"Distinct roots", src, dst, "", ""},
		{"Sibling trash", src, dst, dst + ".pgl-trash", ""},
		{"Same folder", src, src, "", "same folder"},
		{"Target inside source", src, filepath.Join(src, "mirror"), "", "inside"},
		{"Source inside target", filepath.Join(dst, "in"), dst, "", "inside"},
		{"Trash inside target", src, dst, filepath.Join(dst, "trash"), "inside"},
		{"Trash is target", src, dst, dst, "same folder"},
		{"Name prefix is not nesting", src, src + "-copy", "", ""},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckPathNesting(tc.src, tc.dst, tc.trash)
			if tc.wantErr == "" {
				if err != nil {
					t.Errorf("expected no error, got: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("expected error containing %q, got: %v", tc.wantErr, err)
			}
		})
	}
}

func TestCheckTrashDevice(t *testing.T) {
	base := t.TempDir()
	if err := CheckTrashDevice(filepath.Join(base, "dst"), filepath.Join(base, "dst.pgl-trash")); err != nil {
		t.Errorf("expected no warning for trash on the same device, got: %v", err)
	}
	if err := CheckTrashDevice(base, ""); err != nil {
		t.Errorf("expected no warning without trash, got: %v", err)
	}
}

func TestCheckFreeSpace(t *testing.T) {
	dir := t.TempDir()
	if err := CheckFreeSpace(dir, 1); err != nil {
		t.Errorf("expected one byte to fit, got: %v", err)
	}
	err := CheckFreeSpace(filepath.Join(dir, "not", "yet"), 1<<62)
	if err == nil {
		t.Fatal("expected a warning for an impossible amount of bytes")
	}
	if !hints.IsHint(err) {
		t.Errorf("expected free space warning to be a hint, got: %v", err)
	}
}

func TestRun(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "mirror")
	all := &Plan{SourceAccessible: true, TargetAccessible: true, TargetWriteable: true, PathNesting: true, TrashDevice: true, FreeSpace: true}

	t.Run("Dry run does not create the target", func(t *testing.T) {
		p := *all
		p.DryRun = true
		if _, err := Run(&p, src, dst, "", 0); err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if _, err := os.Stat(dst); !os.IsNotExist(err) {
			t.Errorf("expected target to stay missing in dry run, got: %v", err)
		}
	})

	t.Run("Real run creates the target", func(t *testing.T) {
		if _, err := Run(all, src, dst, "", 0); err != nil {
			t.Fatalf("expected no error, got: %v", err)
		}
		if _, err := os.Stat(dst); err != nil {
			t.Errorf("expected target to exist: %v", err)
		}
	})

	t.Run("Nesting is fatal", func(t *testing.T) {
		if _, err := Run(all, src, filepath.Join(src, "inner"), "", 0); err == nil {
			t.Error("expected an error for nested roots")
		}
	})
}
