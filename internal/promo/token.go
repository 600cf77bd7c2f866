package promo

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// TokenStore persists the promo API bearer token across restarts.
type TokenStore interface {
	Load() (string, error)
	Save(token string) error
}

// FileTokenStore keeps the token in a plain file, one token per file.
type FileTokenStore struct {
	path string
	mu   sync.Mutex
}

// NewFileTokenStore constructs a file-backed token store.
func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

// Load reads the stored token. A missing file yields an empty token, not an
// error, so a fresh deployment can bootstrap via refresh.
func (s *FileTokenStore) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read token file: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

// Save writes the token atomically enough for a single-process deployment.
func (s *FileTokenStore) Save(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.WriteFile(s.path, []byte(token), 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	return nil
}

var _ TokenStore = (*FileTokenStore)(nil)

// MemoryTokenStore holds the token in memory only. Used in tests and when no
// token path is configured.
type MemoryTokenStore struct {
	mu    sync.Mutex
	token string
}

func (s *MemoryTokenStore) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

func (s *MemoryTokenStore) Save(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

var _ TokenStore = (*MemoryTokenStore)(nil)
