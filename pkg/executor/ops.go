package executor

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/paulschiretz/pgl-sync/pkg/actionplan"
	"github.com/paulschiretz/pgl-sync/pkg/plog"
	"github.com/paulschiretz/pgl-sync/pkg/report"
	"github.com/paulschiretz/pgl-sync/pkg/util"
)

// errTargetExists is returned when a move or recycle would overwrite an entry.
var errTargetExists = errors.New("target already exists")

func (e *executor) makeDir(a actionplan.Action) report.Outcome {
	perm := os.FileMode(0755)
	if a.Entry != nil {
		perm = a.Entry.Mode.Perm()
	}
	abs := e.destPath(a.Path)

	info, err := os.Lstat(abs)
	switch {
	case err == nil && info.IsDir():
		e.dirCache.Store(abs)
		return e.succeed(a)
	case err == nil:
		return e.fail(a, report.DetailTargetExists, fmt.Errorf("%s exists and is not a folder", a.Path))
	case !errors.Is(err, fs.ErrNotExist):
		return e.fail(a, "", fmt.Errorf("failed to lstat %s: %w", a.Path, err))
	}

	if err := e.ensureDir(abs, perm); err != nil {
		return e.fail(a, "", err)
	}
	e.metrics.AddDirsCreated(1)
	plog.Notice("DIR", "path", a.Path)
	return e.succeed(a)
}

func (e *executor) copy(a actionplan.Action) report.Outcome {
	if a.Entry == nil {
		return e.fail(a, "", fmt.Errorf("no source snapshot for %s", a.Path))
	}
	dst := e.destPath(a.Path)
	if err := e.ensureDir(filepath.Dir(dst), 0755); err != nil {
		return e.fail(a, "", err)
	}

	var err error
	if a.Entry.IsSymlink {
		err = e.copySymlink(a.Entry.LinkTarget, dst)
	} else {
		err = e.copyFileSafe(e.sourcePath(a.Origin), dst, a.Entry.Mode, a.Entry.Size, a.Entry.ModTime)
	}
	if err != nil {
		return e.fail(a, "", err)
	}
	e.metrics.AddFilesCopied(1)
	plog.Notice("COPY", "path", a.Path)
	return e.succeed(a)
}

func (e *executor) move(a actionplan.Action) report.Outcome {
	from, to := e.destPath(a.Origin), e.destPath(a.Path)
	if err := e.ensureDir(filepath.Dir(to), 0755); err != nil {
		return e.fail(a, "", err)
	}
	if err := e.relocate(from, to); err != nil {
		if errors.Is(err, errTargetExists) {
			return e.fail(a, report.DetailTargetExists, err)
		}
		return e.fail(a, "", err)
	}
	e.metrics.AddFilesMoved(1)
	plog.Notice("MOVE", "from", a.Origin, "to", a.Path)
	return e.succeed(a)
}

func (e *executor) recycleFile(a actionplan.Action) report.Outcome {
	from, to := e.destPath(a.Path), e.trashPath(a.TrashPath)
	if err := e.ensureDir(filepath.Dir(to), 0755); err != nil {
		return e.fail(a, "", err)
	}
	if err := e.relocate(from, to); err != nil {
		if errors.Is(err, errTargetExists) {
			return e.fail(a, report.DetailTargetExists, err)
		}
		return e.fail(a, "", err)
	}
	e.metrics.AddFilesRecycled(1)
	plog.Notice("RECYCLE", "path", a.Path, "trash", a.TrashPath)
	return e.succeed(a)
}

// recycleFolder mirrors the folder into the trash and removes the destination
// folder once it is empty. A folder that still has content stays in place.
func (e *executor) recycleFolder(a actionplan.Action) report.Outcome {
	perm := os.FileMode(0755)
	if a.Entry != nil {
		perm = a.Entry.Mode.Perm()
	}
	if err := e.ensureDir(e.trashPath(a.TrashPath), perm); err != nil {
		return e.fail(a, "", err)
	}

	abs := e.destPath(a.Path)
	children, err := os.ReadDir(abs)
	if err != nil {
		return e.fail(a, "", fmt.Errorf("failed to read folder %s: %w", a.Path, err))
	}
	if len(children) > 0 {
		plog.Notice("SKIP", "path", a.Path, "reason", report.DetailFolderNotEmpty)
		return report.Outcome{Action: a, Status: report.Skipped, Detail: report.DetailFolderNotEmpty}
	}
	if err := os.Remove(abs); err != nil {
		return e.fail(a, "", fmt.Errorf("failed to remove folder %s: %w", a.Path, err))
	}
	e.metrics.AddDirsRecycled(1)
	plog.Notice("RECYCLE", "path", a.Path, "trash", a.TrashPath)
	return e.succeed(a)
}

// relocate renames from to to without ever replacing an existing entry. When
// the two paths are on different devices it falls back to copy and delete.
func (e *executor) relocate(from, to string) error {
	if _, err := os.Lstat(to); err == nil {
		return fmt.Errorf("%s: %w", to, errTargetExists)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to lstat %s: %w", to, err)
	}

	err := os.Rename(from, to)
	if err == nil {
		return nil
	}
	if !isCrossDevice(err) {
		return fmt.Errorf("failed to rename %s to %s: %w", from, to, err)
	}

	plog.Debug("Rename crosses devices, copying instead", "from", from, "to", to)
	info, err := os.Lstat(from)
	if err != nil {
		return fmt.Errorf("failed to lstat %s: %w", from, err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(from)
		if err != nil {
			return fmt.Errorf("failed to read link %s: %w", from, err)
		}
		err = e.copySymlink(target, to)
	} else {
		err = e.copyFileSafe(from, to, info.Mode(), info.Size(), info.ModTime().UnixNano())
	}
	if err != nil {
		return err
	}
	if err := os.Remove(from); err != nil {
		return fmt.Errorf("copied %s but failed to remove the original: %w", from, err)
	}
	return nil
}

// ensureDir creates abs and its parents. Concurrent calls for the same folder
// are collapsed into one.
func (e *executor) ensureDir(abs string, perm os.FileMode) error {
	if e.dirCache.Has(abs) {
		return nil
	}
	_, err, _ := e.dirSFGroup.Do(abs, func() (any, error) {
		if e.dirCache.Has(abs) {
			return nil, nil
		}
		if err := os.MkdirAll(abs, util.WithUserWritePermission(perm)); err != nil {
			return nil, fmt.Errorf("failed to create folder %s: %w", abs, err)
		}
		e.dirCache.Store(abs)
		return nil, nil
	})
	return err
}

// copyFileSafe writes the content to a temp file next to the target and renames
// it into place, so the target is either the old or the new file.
func (e *executor) copyFileSafe(absSrcPath, absTrgPath string, mode os.FileMode, size, modTime int64) error {
	var lastErr error
	for i := range e.opts.RetryCount + 1 {
		if i > 0 {
			plog.Warn("Retrying file copy", "file", absSrcPath, "attempt", fmt.Sprintf("%d/%d", i, e.opts.RetryCount), "after", e.opts.RetryWait)
			select {
			case <-e.ctx.Done():
				return e.ctx.Err()
			case <-time.After(e.opts.RetryWait):
			}
		}

		lastErr = func() (err error) {
			in, err := os.Open(absSrcPath)
			if err != nil {
				return fmt.Errorf("failed to open source file %s: %w", absSrcPath, err)
			}
			defer in.Close()

			absTrgDir := filepath.Dir(absTrgPath)
			out, err := os.CreateTemp(absTrgDir, "pgl-sync-*.tmp")
			if err != nil {
				return fmt.Errorf("failed to create temporary file in %s: %w", absTrgDir, err)
			}
			defer out.Close()

			absTempPath := out.Name()
			defer func() {
				if absTempPath != "" {
					os.Remove(absTempPath)
				}
			}()

			if size > 0 {
				_ = out.Truncate(size)
			}

			bufPtr := e.buffers.Get(min(max(size, minCopyBuffer), maxCopyBuffer))
			defer e.buffers.Put(bufPtr)

			written, err := io.CopyBuffer(out, util.NewContextReader(e.ctx, in), *bufPtr)
			if err != nil {
				return fmt.Errorf("failed to copy content from %s to %s: %w", absSrcPath, absTempPath, err)
			}
			// Truncate again in case the source shrank after it was scanned.
			if written != size {
				if err := out.Truncate(written); err != nil {
					return fmt.Errorf("failed to truncate %s: %w", absTempPath, err)
				}
			}
			e.metrics.AddBytesWritten(written)

			if err := out.Chmod(util.WithUserWritePermission(mode.Perm())); err != nil {
				return fmt.Errorf("failed to set permissions on temporary file %s: %w", absTempPath, err)
			}
			// Close before Chtimes: flushing may touch the modification time.
			if err := out.Close(); err != nil {
				return fmt.Errorf("failed to close temporary file %s: %w", absTempPath, err)
			}
			mtime := time.Unix(0, modTime)
			if err := os.Chtimes(absTempPath, mtime, mtime); err != nil {
				return fmt.Errorf("failed to set timestamps on %s: %w", absTempPath, err)
			}
			if err := os.Rename(absTempPath, absTrgPath); err != nil {
				return fmt.Errorf("failed to move temporary file into place: %w", err)
			}
			absTempPath = ""
			return nil
		}()

		if lastErr == nil || e.ctx.Err() != nil {
			return lastErr
		}
	}
	return fmt.Errorf("failed to copy file from '%s' to '%s' after %d attempts: %w", absSrcPath, absTrgPath, e.opts.RetryCount+1, lastErr)
}

// copySymlink recreates a link under a temp name and renames it into place.
func (e *executor) copySymlink(target, absTrgPath string) error {
	var lastErr error
	for i := range e.opts.RetryCount + 1 {
		if i > 0 {
			plog.Warn("Retrying symlink creation", "file", absTrgPath, "attempt", fmt.Sprintf("%d/%d", i, e.opts.RetryCount), "after", e.opts.RetryWait)
			time.Sleep(e.opts.RetryWait)
		}

		lastErr = func() error {
			f, err := os.CreateTemp(filepath.Dir(absTrgPath), "pgl-sync-symlink-*.tmp")
			if err != nil {
				return fmt.Errorf("failed to generate temp name for symlink: %w", err)
			}
			tempName := f.Name()
			f.Close()
			// Only the unique name is needed.
			os.Remove(tempName)
			defer func() {
				if tempName != "" {
					os.Remove(tempName)
				}
			}()

			if err := os.Symlink(target, tempName); err != nil {
				if runtime.GOOS == "windows" && strings.Contains(err.Error(), "privilege") {
					return fmt.Errorf("failed to create symlink (requires Admin or Developer Mode): %w", err)
				}
				return fmt.Errorf("failed to create symlink %s -> %s: %w", tempName, target, err)
			}
			if err := os.Rename(tempName, absTrgPath); err != nil {
				return fmt.Errorf("failed to rename temp symlink to %s: %w", absTrgPath, err)
			}
			tempName = ""
			return nil
		}()

		if lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("failed to create symlink at '%s' after %d attempts: %w", absTrgPath, e.opts.RetryCount+1, lastErr)
}
