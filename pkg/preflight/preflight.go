// Package preflight provides validation and checks that run before a sync
// touches the destination. Apart from the writability probe, the checks do not
// change the state of the system.
package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/disk"

	"github.com/paulschiretz/pgl-sync/pkg/hints"
	"github.com/paulschiretz/pgl-sync/pkg/plog"
	"github.com/paulschiretz/pgl-sync/pkg/util"
)

// CheckSourceAccessible validates that the source path exists and is a folder.
func CheckSourceAccessible(srcPath string) error {
	srcInfo, err := os.Stat(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("source directory %s does not exist", srcPath)
		}
		return fmt.Errorf("cannot stat source directory %s: %w", srcPath, err)
	}
	if !srcInfo.IsDir() {
		return fmt.Errorf("source path %s is not a directory", srcPath)
	}
	return nil
}

// CheckTargetAccessible ensures the destination is usable. It provides more
// user-friendly errors than letting os.MkdirAll fail.
//
// An existing destination must be a folder. A missing destination is created
// by the sync, so its parent folder must exist. On Windows the drive or share
// must be available.
func CheckTargetAccessible(targetPath string) error {
	if err := checkVolumeExists(targetPath); err != nil {
		return err
	}

	info, err := os.Stat(targetPath)
	if os.IsNotExist(err) {
		parentDir := filepath.Dir(targetPath)
		if _, err := os.Stat(parentDir); os.IsNotExist(err) {
			return fmt.Errorf("target path and its parent directory do not exist: %s", parentDir)
		} else if err != nil {
			return fmt.Errorf("cannot access parent directory %s: %w", parentDir, err)
		}
		return nil
	} else if err != nil {
		return fmt.Errorf("cannot access target path: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("target path exists but is not a directory: %s", targetPath)
	}
	return nil
}

// CheckTargetWritable ensures the destination folder can be created and written
// to by creating and deleting a probe file.
func CheckTargetWritable(targetPath string) error {
	if err := os.MkdirAll(targetPath, 0755); err != nil {
		return fmt.Errorf("failed to create target directory %s: %w", targetPath, err)
	}

	tempFile := filepath.Join(targetPath, ".pgl-sync-writetest.tmp")
	f, err := os.Create(tempFile)
	if err != nil {
		return fmt.Errorf("target directory %s is not writable: %w", targetPath, err)
	}
	f.Close()
	_ = os.Remove(tempFile)
	return nil
}

// CheckPathNesting rejects roots that are the same folder or contain each
// other. A walk of one root would otherwise see the other one. An empty trash
// root is ignored.
func CheckPathNesting(srcPath, targetPath, trashPath string) error {
	type root struct{ name, path string }
	roots := []root{{"source", srcPath}, {"target", targetPath}}
	if trashPath != "" {
		roots = append(roots, root{"trash", trashPath})
	}
	for i := range roots {
		for j := range roots {
			if i == j {
				continue
			}
			a, b := roots[i], roots[j]
			if samePath(a.path, b.path) {
				return fmt.Errorf("%s and %s are the same folder: %s", a.name, b.name, a.path)
			}
			if isWithin(a.path, b.path) {
				return fmt.Errorf("%s %s is inside the %s %s", a.name, a.path, b.name, b.path)
			}
		}
	}
	return nil
}

// CheckTrashDevice reports, as a hint, when the trash root is on a different
// device than the destination. Recycling then copies instead of renaming.
func CheckTrashDevice(targetPath, trashPath string) error {
	if trashPath == "" {
		return nil
	}
	same, err := sameDevice(deepestExistingAncestor(targetPath), deepestExistingAncestor(trashPath))
	if err != nil {
		plog.Debug("Could not compare devices of target and trash", "error", err)
		return nil
	}
	if !same {
		return hints.New(fmt.Sprintf("trash %s is on a different device than target %s; recycling will copy files", trashPath, targetPath))
	}
	return nil
}

// CheckFreeSpace reports, as a hint, when the planned copies need more bytes
// than the destination device has free.
func CheckFreeSpace(targetPath string, needed int64) error {
	if needed <= 0 {
		return nil
	}
	usage, err := disk.Usage(deepestExistingAncestor(targetPath))
	if err != nil {
		plog.Debug("Could not read free space of target", "path", targetPath, "error", err)
		return nil
	}
	if usage.Free < uint64(needed) {
		return hints.New(fmt.Sprintf("target %s has %s free but the sync copies up to %s",
			targetPath, util.ByteCountIEC(int64(usage.Free)), util.ByteCountIEC(needed)))
	}
	return nil
}

// Run executes the checks enabled in plan. Fatal problems are returned as the
// error; hints are returned separately and never stop the sync.
func Run(plan *Plan, srcPath, targetPath, trashPath string, copyBytes int64) (warnings []error, err error) {
	if plan.SourceAccessible {
		if err := CheckSourceAccessible(srcPath); err != nil {
			return nil, err
		}
	}
	if plan.TargetAccessible {
		if err := CheckTargetAccessible(targetPath); err != nil {
			return nil, err
		}
	}
	if plan.PathNesting {
		if err := CheckPathNesting(srcPath, targetPath, trashPath); err != nil {
			return nil, err
		}
	}
	if plan.TargetWriteable && !plan.DryRun {
		if err := CheckTargetWritable(targetPath); err != nil {
			return nil, err
		}
	}
	if plan.TrashDevice {
		if w := CheckTrashDevice(targetPath, trashPath); w != nil {
			warnings = append(warnings, w)
		}
	}
	if plan.FreeSpace {
		if w := CheckFreeSpace(targetPath, copyBytes); w != nil {
			warnings = append(warnings, w)
		}
	}
	for _, w := range warnings {
		plog.Warn("Preflight warning", "detail", w)
	}
	return warnings, nil
}

// deepestExistingAncestor walks up from path to the first folder that exists.
func deepestExistingAncestor(path string) string {
	ancestor := path
	for {
		if _, err := os.Stat(ancestor); err == nil {
			return ancestor
		}
		parent := filepath.Dir(ancestor)
		if parent == ancestor {
			return ancestor
		}
		ancestor = parent
	}
}

func comparablePath(p string) string {
	p = filepath.Clean(p)
	if runtime.GOOS == "windows" || util.IsHostCaseInsensitiveFS() {
		p = strings.ToLower(p)
	}
	return p
}

func samePath(a, b string) bool {
	return comparablePath(a) == comparablePath(b)
}

// isWithin reports whether child is strictly below parent.
func isWithin(child, parent string) bool {
	rel, err := filepath.Rel(comparablePath(parent), comparablePath(child))
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
