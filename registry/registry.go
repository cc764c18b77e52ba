// Package registry resolves opaque speaker identifiers to display names.
// The mapping is loaded from a YAML file outside the capture path and is
// read-only while a session is running.
package registry

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

type Registry struct {
	mu    sync.RWMutex
	names map[string]string
}

func New() *Registry {
	return &Registry{names: make(map[string]string)}
}

func Load(path string) (*Registry, error) {
	r := New()
	if path == "" {
		return r, nil
	}
	if err := r.Reload(path); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) Reload(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read participant map: %w", err)
	}

	names := make(map[string]string)
	if err := yaml.Unmarshal(data, &names); err != nil {
		return fmt.Errorf("failed to parse participant map: %w", err)
	}

	r.mu.Lock()
	r.names = names
	r.mu.Unlock()
	return nil
}

// DisplayName falls back to the raw identifier on a miss; an unknown
// speaker never blocks capture.
func (r *Registry) DisplayName(speakerID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name, ok := r.names[speakerID]; ok && name != "" {
		return name
	}
	return speakerID
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.names)
}
