//go:build !windows

package pathscan

import "golang.org/x/sys/unix"

// folderID identifies a folder independent of the path it was reached by.
type folderID struct {
	dev uint64
	ino uint64
}

// identify stats path, following symlinks, and returns its device and inode.
func identify(path string) (folderID, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return folderID{}, err
	}
	return folderID{dev: uint64(st.Dev), ino: uint64(st.Ino)}, nil
}
