// Package cache persists values as checksummed JSON files.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrCorrupt is returned when a stored file no longer matches its checksum.
var ErrCorrupt = errors.New("cache entry is corrupt")

type CacheEntry[T any] struct {
	Data      T         `json:"data"`
	CreatedAt time.Time `json:"created_at"`
	Checksum  string    `json:"checksum"`
}

type FileCache[T any] struct {
	cacheDir string
	now      func() time.Time
}

func NewFileCache[T any](dataDir, subDir string) *FileCache[T] {
	return &FileCache[T]{
		cacheDir: filepath.Join(dataDir, subDir),
		now:      time.Now,
	}
}

func (fc *FileCache[T]) Dir() string {
	return fc.cacheDir
}

// Load returns the stored value and when it was written. A missing key
// reports os.ErrNotExist.
func (fc *FileCache[T]) Load(key string) (T, time.Time, error) {
	var zero T
	raw, err := os.ReadFile(fc.path(key))
	if err != nil {
		return zero, time.Time{}, err
	}

	var entry CacheEntry[T]
	if err := json.Unmarshal(raw, &entry); err != nil {
		return zero, time.Time{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	expected, err := checksum(entry.Data)
	if err != nil {
		return zero, time.Time{}, err
	}
	if entry.Checksum != expected {
		return zero, time.Time{}, ErrCorrupt
	}

	return entry.Data, entry.CreatedAt, nil
}

func (fc *FileCache[T]) Set(key string, data T) error {
	if err := os.MkdirAll(fc.cacheDir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	sum, err := checksum(data)
	if err != nil {
		return err
	}
	entry := CacheEntry[T]{
		Data:      data,
		CreatedAt: fc.now(),
		Checksum:  sum,
	}

	jsonData, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	cacheFile := fc.path(key)
	tmpFile := cacheFile + ".tmp"

	if err := os.WriteFile(tmpFile, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write temp cache file: %w", err)
	}

	if err := os.Rename(tmpFile, cacheFile); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to rename temp cache file: %w", err)
	}

	return nil
}

func (fc *FileCache[T]) Delete(key string) error {
	if err := os.Remove(fc.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// Keys lists stored keys in name order.
func (fc *FileCache[T]) Keys() ([]string, error) {
	entries, err := os.ReadDir(fc.cacheDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list cache directory: %w", err)
	}
	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(keys)
	return keys, nil
}

func (fc *FileCache[T]) path(key string) string {
	return filepath.Join(fc.cacheDir, key+".json")
}

func checksum[T any](data T) (string, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal cache data: %w", err)
	}
	hash := sha256.Sum256(jsonData)
	return hex.EncodeToString(hash[:]), nil
}
