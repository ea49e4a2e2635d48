// internal/state/provider.go
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/user/opla/internal/types"
)

// ProviderStore is a JSON-file-backed store for provider records,
// including their error logs.
type ProviderStore struct {
	path string
	mu   sync.RWMutex
}

// NewProviderStore creates a new file-backed ProviderStore at the given file path.
func NewProviderStore(path string) *ProviderStore {
	return &ProviderStore{path: path}
}

// Path returns the file path used by this store.
func (s *ProviderStore) Path() string {
	return s.path
}

// List returns all providers. Returns an empty slice if the file doesn't exist.
func (s *ProviderStore) List() ([]types.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	providers, err := s.load()
	if err != nil {
		return nil, err
	}
	if providers == nil {
		return []types.Provider{}, nil
	}
	return providers, nil
}

// Get finds a provider by id or name.
func (s *ProviderStore) Get(idOrName string) (types.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	providers, err := s.load()
	if err != nil {
		return types.Provider{}, err
	}
	for _, p := range providers {
		if string(p.ID) == idOrName || p.Name == idOrName {
			return p, nil
		}
	}
	return types.Provider{}, fmt.Errorf("provider not found: %s", idOrName)
}

// Put adds p, or replaces the stored provider with the same id.
func (s *ProviderStore) Put(p types.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	providers, err := s.load()
	if err != nil {
		return err
	}
	for i := range providers {
		if providers[i].ID == p.ID {
			providers[i] = p
			return s.save(providers)
		}
	}
	return s.save(append(providers, p))
}

// Remove deletes a provider by id or name. Returns an error if not found.
func (s *ProviderStore) Remove(idOrName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	providers, err := s.load()
	if err != nil {
		return err
	}
	for i, p := range providers {
		if string(p.ID) == idOrName || p.Name == idOrName {
			providers = append(providers[:i], providers[i+1:]...)
			return s.save(providers)
		}
	}
	return fmt.Errorf("provider not found: %s", idOrName)
}

// SetErrors replaces the error log of a provider.
func (s *ProviderStore) SetErrors(id types.ProviderID, errs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	providers, err := s.load()
	if err != nil {
		return err
	}
	for i := range providers {
		if providers[i].ID == id {
			providers[i].Errors = append([]string(nil), errs...)
			return s.save(providers)
		}
	}
	return fmt.Errorf("provider not found: %s", id)
}

// load reads the JSON file and returns the provider list. Returns nil if the file doesn't exist.
func (s *ProviderStore) load() ([]types.Provider, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read providers file: %w", err)
	}

	var providers []types.Provider
	if err := json.Unmarshal(data, &providers); err != nil {
		return nil, fmt.Errorf("unmarshal providers: %w", err)
	}
	return providers, nil
}

func (s *ProviderStore) save(providers []types.Provider) error {
	data, err := json.MarshalIndent(providers, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal providers: %w", err)
	}
	return writeFileAtomic(s.path, data)
}
