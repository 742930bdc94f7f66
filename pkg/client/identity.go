package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Identity is the origin's identity snapshot for the logged-in user.
type Identity struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	IsStaff   bool   `json:"is_staff"`
}

// IdentityCache persists the identity snapshot between runs. Load returns
// (nil, nil) when nothing is cached.
type IdentityCache interface {
	Load() (*Identity, error)
	Save(identity *Identity) error
	Clear() error
}

// FileIdentityCache keeps the snapshot in a JSON file with owner-only
// permissions.
type FileIdentityCache struct {
	path string
}

// NewFileIdentityCache builds a cache at the given path.
func NewFileIdentityCache(path string) *FileIdentityCache {
	return &FileIdentityCache{path: path}
}

// Load reads the cached identity, or (nil, nil) when the file is absent.
func (c *FileIdentityCache) Load() (*Identity, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read identity cache: %w", err)
	}
	var identity Identity
	if err := json.Unmarshal(data, &identity); err != nil {
		return nil, fmt.Errorf("decode identity cache: %w", err)
	}
	return &identity, nil
}

// Save writes the snapshot atomically.
func (c *FileIdentityCache) Save(identity *Identity) error {
	data, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("encode identity: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write identity cache: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("replace identity cache: %w", err)
	}
	return nil
}

// Clear removes the cache file. A missing file is not an error.
func (c *FileIdentityCache) Clear() error {
	if err := os.Remove(c.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove identity cache: %w", err)
	}
	return nil
}

// MemoryIdentityCache is the in-process cache used by tests and callers that
// do not want durable state.
type MemoryIdentityCache struct {
	identity *Identity
}

// NewMemoryIdentityCache builds an empty cache.
func NewMemoryIdentityCache() *MemoryIdentityCache {
	return &MemoryIdentityCache{}
}

// Load returns the cached identity, or (nil, nil).
func (c *MemoryIdentityCache) Load() (*Identity, error) {
	if c.identity == nil {
		return nil, nil
	}
	cp := *c.identity
	return &cp, nil
}

// Save stores the snapshot.
func (c *MemoryIdentityCache) Save(identity *Identity) error {
	cp := *identity
	c.identity = &cp
	return nil
}

// Clear drops the snapshot.
func (c *MemoryIdentityCache) Clear() error {
	c.identity = nil
	return nil
}
