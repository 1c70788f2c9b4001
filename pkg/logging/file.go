package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// fileWriter writes log output to a file with size-based rotation.
// Writes are serialized; the handler above may be shared by any number
// of goroutines.
type fileWriter struct {
	mu       sync.Mutex
	file     *os.File
	path     string
	maxSize  int64
	maxFiles int
	written  int64
}

func newFileWriter(opts FileOptions) (*fileWriter, error) {
	maxSize := opts.MaxSize
	if maxSize <= 0 {
		maxSize = 10 * 1024 * 1024
	}
	maxFiles := opts.MaxFiles
	if maxFiles <= 0 {
		maxFiles = 5
	}

	if err := os.MkdirAll(filepath.Dir(opts.Path), 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(opts.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	fw := &fileWriter{
		file:     f,
		path:     opts.Path,
		maxSize:  maxSize,
		maxFiles: maxFiles,
	}
	if info, err := f.Stat(); err == nil {
		fw.written = info.Size()
	}
	return fw, nil
}

// Write implements io.Writer.
func (fw *fileWriter) Write(p []byte) (int, error) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.file == nil {
		return 0, fmt.Errorf("log file closed")
	}
	if fw.written+int64(len(p)) > fw.maxSize {
		if err := fw.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := fw.file.Write(p)
	fw.written += int64(n)
	return n, err
}

// rotate shifts path.N-1 -> path.N and reopens a fresh file. Caller
// holds fw.mu.
func (fw *fileWriter) rotate() error {
	fw.file.Close()

	for i := fw.maxFiles - 1; i >= 1; i-- {
		os.Rename(fmt.Sprintf("%s.%d", fw.path, i), fmt.Sprintf("%s.%d", fw.path, i+1))
	}
	os.Rename(fw.path, fw.path+".1")

	f, err := os.OpenFile(fw.path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		fw.file = nil
		return err
	}
	fw.file = f
	fw.written = 0
	return nil
}

// Close closes the underlying file.
func (fw *fileWriter) Close() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.file == nil {
		return nil
	}
	err := fw.file.Close()
	fw.file = nil
	return err
}
