package report

import (
	"fmt"
	"path/filepath"

	"github.com/user/gopseek/pkg/ports"
)

// Writer writes formatted reports through a FileSystem.
type Writer struct {
	fs        ports.FileSystem
	formatter Formatter
}

// NewWriter creates a new Writer.
func NewWriter(fs ports.FileSystem, formatter Formatter) *Writer {
	return &Writer{
		fs:        fs,
		formatter: formatter,
	}
}

// Write formats the report and writes it to path, creating parent
// directories as needed.
func (w *Writer) Write(path string, r *Report) error {
	content := w.formatter.Format(r)

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := w.fs.MkdirAll(dir); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}

	if err := w.fs.WriteFile(path, []byte(content)); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}
