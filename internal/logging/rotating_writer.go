package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// RotatingFileWriter implements a file writer with size-based rotation.
// Backups are named <path>.1 (newest) through <path>.<maxBackups> (oldest).
type RotatingFileWriter struct {
	mu         sync.Mutex
	file       *os.File
	filePath   string
	maxSize    int64
	maxBackups int
	size       int64
}

// NewRotatingFileWriter creates a new rotating file writer
func NewRotatingFileWriter(filePath string, maxSize int64, maxBackups int) (*RotatingFileWriter, error) {
	w := &RotatingFileWriter{
		filePath:   filePath,
		maxSize:    maxSize,
		maxBackups: maxBackups,
	}

	if err := w.openFile(); err != nil {
		return nil, err
	}

	info, err := w.file.Stat()
	if err != nil {
		_ = w.file.Close()
		return nil, err
	}
	w.size = info.Size()

	return w, nil
}

// Write implements io.Writer
func (w *RotatingFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.maxSize > 0 && w.size > 0 && w.size+int64(len(p)) > w.maxSize {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// Close closes the file
func (w *RotatingFileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

func (w *RotatingFileWriter) openFile() error {
	file, err := os.OpenFile(w.filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	w.file = file
	return nil
}

// rotate shifts every backup up by one, dropping the oldest, and reopens
// an empty log file. With maxBackups <= 0 the log is simply truncated.
func (w *RotatingFileWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return err
	}

	if w.maxBackups > 0 {
		_ = os.Remove(w.backupName(w.maxBackups))
		for i := w.maxBackups - 1; i >= 1; i-- {
			if _, err := os.Stat(w.backupName(i)); err == nil {
				if err := os.Rename(w.backupName(i), w.backupName(i+1)); err != nil {
					return err
				}
			}
		}
		if err := os.Rename(w.filePath, w.backupName(1)); err != nil && !os.IsNotExist(err) {
			return err
		}
	} else if err := os.Truncate(w.filePath, 0); err != nil && !os.IsNotExist(err) {
		return err
	}

	if err := w.openFile(); err != nil {
		return err
	}
	w.size = 0
	return nil
}

func (w *RotatingFileWriter) backupName(index int) string {
	return fmt.Sprintf("%s.%d", w.filePath, index)
}

var _ io.WriteCloser = (*RotatingFileWriter)(nil)
