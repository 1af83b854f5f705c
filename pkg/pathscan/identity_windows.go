//go:build windows

package pathscan

import (
	"path/filepath"
	"strings"
)

// folderID identifies a folder by its fully resolved, case folded path.
type folderID struct {
	realPath string
}

// identify resolves every link in path.
func identify(path string) (folderID, error) {
	real, err := filepath.EvalSymlinks(path)
	if err != nil {
		return folderID{}, err
	}
	abs, err := filepath.Abs(real)
	if err != nil {
		return folderID{}, err
	}
	return folderID{realPath: strings.ToLower(abs)}, nil
}
