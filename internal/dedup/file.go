package dedup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// FileStore keeps sets in a JSON file, rewritten after every change.
type FileStore struct {
	filePath string
	mu       sync.RWMutex
	sets     map[string]map[string]struct{}
}

// NewFileStore opens path, starting empty when the file does not exist yet.
func NewFileStore(path string) (*FileStore, error) {
	fs := &FileStore{
		filePath: path,
		sets:     make(map[string]map[string]struct{}),
	}
	if err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *FileStore) load() error {
	data, err := os.ReadFile(fs.filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read dedup file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var raw map[string][]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to unmarshal dedup file: %w", err)
	}
	for key, members := range raw {
		set := make(map[string]struct{}, len(members))
		for _, m := range members {
			set[m] = struct{}{}
		}
		fs.sets[key] = set
	}
	return nil
}

// save writes to a temp file and renames it over the old one. Caller holds mu.
func (fs *FileStore) save() error {
	raw := make(map[string][]string, len(fs.sets))
	for key, set := range fs.sets {
		members := make([]string, 0, len(set))
		for m := range set {
			members = append(members, m)
		}
		sort.Strings(members)
		raw[key] = members
	}

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal dedup file: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(fs.filePath), ".dedup-*.json")
	if err != nil {
		return fmt.Errorf("failed to write dedup file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write dedup file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write dedup file: %w", err)
	}
	if err := os.Rename(tmp.Name(), fs.filePath); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace dedup file: %w", err)
	}
	return nil
}

func (fs *FileStore) Exists(_ context.Context, key string) (bool, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	_, ok := fs.sets[key]
	return ok, nil
}

func (fs *FileStore) SAdd(_ context.Context, key, member string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	set, ok := fs.sets[key]
	if !ok {
		set = make(map[string]struct{})
		fs.sets[key] = set
	}
	if _, dup := set[member]; dup {
		return nil
	}
	set[member] = struct{}{}
	return fs.save()
}

func (fs *FileStore) SRem(_ context.Context, key, member string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	set, ok := fs.sets[key]
	if !ok {
		return nil
	}
	if _, present := set[member]; !present {
		return nil
	}
	delete(set, member)
	if len(set) == 0 {
		delete(fs.sets, key)
	}
	return fs.save()
}

func (fs *FileStore) SIsMember(_ context.Context, key, member string) (bool, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	_, ok := fs.sets[key][member]
	return ok, nil
}

func (fs *FileStore) Ping(context.Context) error {
	dir := filepath.Dir(fs.filePath)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("dedup dir: %w", err)
	}
	return nil
}

func (fs *FileStore) Close() error { return nil }
