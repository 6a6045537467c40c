package ports

import "io"

// FileInfo is the subset of file metadata the tools need.
type FileInfo struct {
	Size int64
	Dir  bool
}

// FileSystem is where exported frames, raw range dumps, contact sheets and
// reports are written. Write operations create missing parent directories.
type FileSystem interface {
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte) error

	// Create opens path for streaming writes, truncating an existing file.
	// The file is complete once the returned writer is closed.
	Create(path string) (io.WriteCloser, error)

	MkdirAll(path string) error

	// Stat returns an error matching fs.ErrNotExist for missing paths.
	Stat(path string) (FileInfo, error)

	Remove(path string) error
}
