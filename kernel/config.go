package kernel

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ConfigStore stores per-module JSON documents in configPath. Implemented
// fully per the resolution recorded in DESIGN.md: the out-of-scope bullet in
// the purpose/scope section is read narrowly as excluding a general-purpose
// document database, not this per-module JSON store.
type ConfigStore struct {
	mu         sync.RWMutex
	configPath string
	configs    map[string]map[string]any
}

// NewConfigStore constructs a store rooted at configPath.
func NewConfigStore(configPath string) *ConfigStore {
	return &ConfigStore{
		configPath: configPath,
		configs:    make(map[string]map[string]any),
	}
}

// LoadAllConfigs creates configPath if needed, enumerates *.json, and loads
// each in parallel into the in-memory mapping.
func (c *ConfigStore) LoadAllConfigs() error {
	if err := os.MkdirAll(c.configPath, 0o755); err != nil {
		return &ConfigurationError{ModuleName: "*", Err: err}
	}
	entries, err := os.ReadDir(c.configPath)
	if err != nil {
		return &ConfigurationError{ModuleName: "*", Err: err}
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".json")
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			doc, err := c.LoadConfig(name)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			c.mu.Lock()
			c.configs[name] = doc
			c.mu.Unlock()
		}(name)
	}
	wg.Wait()
	return firstErr
}

func (c *ConfigStore) path(name string) string {
	return filepath.Join(c.configPath, name+".json")
}

// LoadConfig reads {name}.json. A missing file yields an empty object, not
// an error.
func (c *ConfigStore) LoadConfig(name string) (map[string]any, error) {
	data, err := os.ReadFile(c.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, &ConfigurationError{ModuleName: name, Err: err}
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &ConfigurationError{ModuleName: name, Err: err}
	}
	return doc, nil
}

// SaveConfig serializes obj with 2-space indent.
func (c *ConfigStore) SaveConfig(name string, obj map[string]any) error {
	data, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return &ConfigurationError{ModuleName: name, Err: err}
	}
	if err := os.MkdirAll(c.configPath, 0o755); err != nil {
		return &ConfigurationError{ModuleName: name, Err: err}
	}
	if err := os.WriteFile(c.path(name), data, 0o644); err != nil {
		return &ConfigurationError{ModuleName: name, Err: err}
	}
	c.mu.Lock()
	c.configs[name] = obj
	c.mu.Unlock()
	return nil
}

// UpdateConfig performs a shallow merge of patch into the existing document
// and saves it.
func (c *ConfigStore) UpdateConfig(name string, patch map[string]any) error {
	c.mu.RLock()
	existing := c.configs[name]
	c.mu.RUnlock()
	merged := make(map[string]any, len(existing)+len(patch))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}
	return c.SaveConfig(name, merged)
}

// DeleteConfig removes the file and the map entry.
func (c *ConfigStore) DeleteConfig(name string) error {
	if err := os.Remove(c.path(name)); err != nil && !os.IsNotExist(err) {
		return &ConfigurationError{ModuleName: name, Err: err}
	}
	c.mu.Lock()
	delete(c.configs, name)
	c.mu.Unlock()
	return nil
}

// HasConfig reports whether a document is currently loaded in memory.
func (c *ConfigStore) HasConfig(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.configs[name]
	return ok
}

// GetConfig returns the in-memory document for name, or nil.
func (c *ConfigStore) GetConfig(name string) map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.configs[name]
}

// ConfigBool reads a bool field from a module's config document, or false if
// absent/wrong type. Used by Manager when consulting config.disabled.
func ConfigBool(doc map[string]any, key string) (bool, bool) {
	if doc == nil {
		return false, false
	}
	v, ok := doc[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}
