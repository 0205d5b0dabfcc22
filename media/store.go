package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Store defines the interface for saving and deleting stored objects
type Store interface {
	// Save stores data under bucket/name and returns the key used
	Save(ctx context.Context, bucket, name, contentType string, data io.Reader) (string, error)
	// Delete removes an object; deleting a missing object is not an error
	Delete(ctx context.Context, bucket, name string) error
}

// LocalStorage implements the Store interface using the local filesystem
type LocalStorage struct {
	basePath string // absolute path to the MEDIA_STORAGE_PATH
	log      *zap.SugaredLogger
}

// NewLocalStorage creates a new local filesystem store
func NewLocalStorage(basePath string, log *zap.SugaredLogger) (*LocalStorage, error) {
	absBasePath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("invalid base storage path '%s': %w", basePath, err)
	}

	if err := os.MkdirAll(absBasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base storage directory '%s': %w", absBasePath, err)
	}

	log.Infof("media.store: Initialized LocalStorage at %s", absBasePath)
	return &LocalStorage{basePath: absBasePath, log: log}, nil
}

// BasePath is the absolute root all objects are stored under.
func (ls *LocalStorage) BasePath() string {
	return ls.basePath
}

// EnsureDir creates the directory for the bucket if it doesn't exist
func (ls *LocalStorage) EnsureDir(bucket string) (string, error) {
	dirPath, err := ls.GetFullPath(bucket)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return "", fmt.Errorf("failed to ensure directory '%s': %w", dirPath, err)
	}
	return dirPath, nil
}

func (ls *LocalStorage) Save(ctx context.Context, bucket, name, contentType string, data io.Reader) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid object name '%s'", name)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	bucketDir, err := ls.EnsureDir(bucket)
	if err != nil {
		return "", err
	}
	fullSavePath := filepath.Join(bucketDir, name)

	outFile, err := os.Create(fullSavePath)
	if err != nil {
		return "", fmt.Errorf("failed to create destination file '%s': %w", fullSavePath, err)
	}
	defer outFile.Close()

	_, err = io.Copy(outFile, data)
	if err != nil {
		outFile.Close()
		os.Remove(fullSavePath)
		return "", fmt.Errorf("failed to write data to '%s': %w", fullSavePath, err)
	}

	ls.log.Infof("media.store: Saved object to %s", fullSavePath)
	return name, nil
}

// Get opens a stored object for reading.
func (ls *LocalStorage) Get(bucket, name string) (io.ReadCloser, os.FileInfo, error) {
	fullPath, err := ls.GetFullPath(filepath.Join(bucket, name))
	if err != nil {
		return nil, nil, err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("object not found at '%s/%s': %w", bucket, name, err)
		}
		return nil, nil, fmt.Errorf("failed to open object '%s/%s': %w", bucket, name, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("failed to stat object '%s/%s': %w", bucket, name, err)
	}

	return file, info, nil
}

// Delete removes an object file
func (ls *LocalStorage) Delete(ctx context.Context, bucket, name string) error {
	fullPath, err := ls.GetFullPath(filepath.Join(bucket, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	err = os.Remove(fullPath)
	if err != nil && !os.IsNotExist(err) { // Ignore "not exist" errors
		return fmt.Errorf("failed to delete object '%s/%s': %w", bucket, name, err)
	}
	if err == nil {
		ls.log.Infof("media.store: Deleted object %s", fullPath)
	}
	return nil
}

// GetFullPath calculates the absolute path and performs security check
func (ls *LocalStorage) GetFullPath(relativePath string) (string, error) {
	// clean the relative path first to prevent simple traversal tricks
	cleanRelativePath := filepath.Clean(relativePath)

	fullPath := filepath.Join(ls.basePath, cleanRelativePath)

	absFullPath, err := filepath.Abs(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path for '%s': %w", relativePath, err)
	}

	if absFullPath != ls.basePath && !strings.HasPrefix(absFullPath, ls.basePath+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid path: access denied for '%s'", relativePath)
	}

	return absFullPath, nil
}
