// Package secrets provides unencrypted, file-backed storage for credential
// material referenced by the "local://" token scheme (internal/config's
// ResolveTokenRef), grounded on stacklok-toolhive/pkg/secrets/basic.go's
// BasicManager. It exists so `codeexecgw upstream auth --secret` never has
// to put a literal bearer token in the YAML config file; like the teacher's
// BasicManager, it is explicitly not a substitute for an OS keychain.
package secrets

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/adrg/xdg"
)

// defaultRelPath is passed to xdg.DataFile, matching the teacher's
// CreateDefaultSecretsManager pattern (there: "vibetool/secrets").
const defaultRelPath = "codeexecgw/secrets.json"

// Store is a mutex-guarded, JSON-file-backed map of secret name to value.
type Store struct {
	mu       sync.RWMutex
	filePath string
	values   map[string]string
}

type fileStructure struct {
	Secrets map[string]string `json:"secrets"`
}

// Open loads (or initializes) the default secrets file under the XDG data
// directory.
func Open() (*Store, error) {
	filePath, err := xdg.DataFile(defaultRelPath)
	if err != nil {
		return nil, fmt.Errorf("resolve secrets file path: %w", err)
	}
	return OpenAt(filePath)
}

// OpenAt loads (or initializes) the secrets file at an explicit path,
// primarily for tests that don't want to touch the real XDG data directory.
func OpenAt(filePath string) (*Store, error) {
	filePath = filepath.Clean(filePath)

	data, err := os.ReadFile(filePath)
	if os.IsNotExist(err) {
		return &Store{filePath: filePath, values: make(map[string]string)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read secrets file: %w", err)
	}

	var contents fileStructure
	if len(data) > 0 {
		if err := json.Unmarshal(data, &contents); err != nil {
			return nil, fmt.Errorf("parse secrets file: %w", err)
		}
	}
	if contents.Secrets == nil {
		contents.Secrets = make(map[string]string)
	}
	return &Store{filePath: filePath, values: contents.Secrets}, nil
}

// Get returns a stored secret's value.
func (s *Store) Get(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	return v, ok
}

// Set stores a secret's value and persists the store immediately.
func (s *Store) Set(name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = value
	return s.persistLocked()
}

// Delete removes a secret and persists the store immediately.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, name)
	return s.persistLocked()
}

func (s *Store) persistLocked() error {
	encoded, err := json.Marshal(fileStructure{Secrets: s.values})
	if err != nil {
		return fmt.Errorf("marshal secrets: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o700); err != nil {
		return fmt.Errorf("create secrets directory: %w", err)
	}
	if err := os.WriteFile(s.filePath, encoded, 0o600); err != nil {
		return fmt.Errorf("write secrets file: %w", err)
	}
	return nil
}
