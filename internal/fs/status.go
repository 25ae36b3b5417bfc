package fs

import "time"

// FileStatus is a point-in-time view of one path, recomputed from store
// responses on every query and never cached.
type FileStatus struct {
	Path  string
	IsDir bool

	// IsEmptyDir is defined only when IsDir is true: the directory is
	// represented solely by a zero-length marker object with no children.
	IsEmptyDir bool

	Length    int64
	ModTime   time.Time
	BlockSize int64
}

// IsFile reports whether the status denotes a regular file.
func (s FileStatus) IsFile() bool { return !s.IsDir }

func newDirStatus(path string, empty bool) FileStatus {
	return FileStatus{Path: path, IsDir: true, IsEmptyDir: empty}
}

func (f *FileSystem) newFileStatus(path string, length int64, modTime time.Time) FileStatus {
	return FileStatus{
		Path:      path,
		Length:    length,
		ModTime:   modTime,
		BlockSize: f.blockSize,
	}
}
