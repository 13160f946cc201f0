package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

const dirPermissions = 0o750

// newRotatingWriter opens a size and age rotated log file.
// Rotation limits fall back to the defaults when out leaves them unset.
func newRotatingWriter(path string, out *FileOutput) (*lumberjack.Logger, error) {
	if path == "" {
		return nil, fmt.Errorf("log file path is empty")
	}
	if err := ensureFileDirectory(path); err != nil {
		return nil, err
	}

	w := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    DefaultMaxSize,
		MaxAge:     DefaultMaxAge,
		MaxBackups: DefaultMaxRotatedFiles,
		LocalTime:  true,
	}
	if out != nil {
		if out.MaxSize > 0 {
			w.MaxSize = out.MaxSize
		}
		w.MaxAge = out.MaxAge
		w.MaxBackups = out.MaxRotatedFiles
		w.Compress = out.Compress
	}

	return w, nil
}

// ensureFileDirectory creates the directory for a file path if it doesn't exist
func ensureFileDirectory(filePath string) error {
	dir := filepath.Dir(filePath)
	if dir == "." || dir == filePath {
		return nil
	}
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}
