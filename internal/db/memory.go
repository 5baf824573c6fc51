package db

import (
	"github.com/82flex/trollpatch/internal/model"
)

// Memory is a persisted-asset store that keeps records in memory. It is used
// by tests and as a fallback when no sqlite path is configured.
type Memory struct {
	Apps map[string][]string
}

// NewInMemory creates a new in-memory database.
func NewInMemory() (Database, error) {
	return &Memory{
		Apps: make(map[string][]string),
	}, nil
}

// Connect connects to the database.
func (m *Memory) Connect() error {
	return nil
}

// SaveAssets records asset paths against an app identifier.
func (m *Memory) SaveAssets(identifier string, paths []string) error {
	existing := make(map[string]bool)
	for _, p := range m.Apps[identifier] {
		existing[p] = true
	}
	for _, p := range paths {
		if !existing[p] {
			m.Apps[identifier] = append(m.Apps[identifier], p)
		}
	}
	return nil
}

// Assets returns the asset paths recorded for an app identifier.
func (m *Memory) Assets(identifier string) ([]string, error) {
	paths, exists := m.Apps[identifier]
	if !exists {
		return nil, model.ErrNotFound
	}
	return paths, nil
}

// Prune removes asset paths from an app's record.
func (m *Memory) Prune(identifier string, paths []string) error {
	if len(paths) == 0 {
		delete(m.Apps, identifier)
		return nil
	}
	drop := make(map[string]bool, len(paths))
	for _, p := range paths {
		drop[p] = true
	}
	var kept []string
	for _, p := range m.Apps[identifier] {
		if !drop[p] {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		delete(m.Apps, identifier)
		return nil
	}
	m.Apps[identifier] = kept
	return nil
}

// Close closes the database.
func (m *Memory) Close() error {
	return nil
}
