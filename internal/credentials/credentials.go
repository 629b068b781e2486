package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var ErrNotFound = errors.New("no credential for identity")

// Credential is the stored auth material for one sender identity.
type Credential struct {
	Identity     string    `json:"identity"`
	Username     string    `json:"username"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	Expiry       time.Time `json:"expiry"`
}

func (c Credential) Expired(now time.Time) bool {
	return !c.Expiry.IsZero() && !now.Before(c.Expiry)
}

// Store persists credentials per identity. There is deliberately no global
// state; providers receive a store instance.
type Store interface {
	Get(ctx context.Context, identity string) (Credential, error)
	Save(ctx context.Context, cred Credential) error
}

// RefreshFunc exchanges an expired credential for a fresh one. The OAuth flow
// behind it lives outside this subsystem.
type RefreshFunc func(ctx context.Context, cred Credential) (Credential, error)

// Manager wraps a Store with refresh-on-expiry. Token is what provider
// adapters call before every send.
type Manager struct {
	store   Store
	refresh RefreshFunc
	now     func() time.Time
}

func NewManager(store Store, refresh RefreshFunc) *Manager {
	return &Manager{
		store:   store,
		refresh: refresh,
		now:     time.Now,
	}
}

func (m *Manager) Token(ctx context.Context, identity string) (Credential, error) {
	cred, err := m.store.Get(ctx, identity)
	if err != nil {
		return Credential{}, err
	}
	if !cred.Expired(m.now()) {
		return cred, nil
	}
	if m.refresh == nil {
		return Credential{}, fmt.Errorf("credential for %s expired and no refresh configured", identity)
	}

	fresh, err := m.refresh(ctx, cred)
	if err != nil {
		return Credential{}, fmt.Errorf("credential refresh failed: %w", err)
	}
	if err := m.store.Save(ctx, fresh); err != nil {
		return Credential{}, fmt.Errorf("credential save failed: %w", err)
	}

	return fresh, nil
}

// FileStore keeps credentials in a single JSON file keyed by identity.
type FileStore struct {
	path string

	mu    sync.Mutex
	creds map[string]Credential
}

func NewFileStore(path string) (*FileStore, error) {
	fs := &FileStore{
		path:  path,
		creds: make(map[string]Credential),
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return fs, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &fs.creds); err != nil {
		return nil, fmt.Errorf("credential file corrupt: %w", err)
	}

	return fs, nil
}

func (f *FileStore) Get(_ context.Context, identity string) (Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cred, ok := f.creds[identity]
	if !ok {
		return Credential{}, fmt.Errorf("%w: %s", ErrNotFound, identity)
	}

	return cred, nil
}

func (f *FileStore) Save(_ context.Context, cred Credential) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.creds[cred.Identity] = cred

	data, err := json.MarshalIndent(f.creds, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(f.path, data, 0o600)
}
