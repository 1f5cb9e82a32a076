// Package store implements the persistent credential store: a keyed map of
// principal identifiers to key material and an administrator flag, backed
// by an owner-only JSON file that is replaced atomically on every write.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/marmos91/ticketd/internal/logger"
	"github.com/marmos91/ticketd/pkg/protocol"
)

const (
	// Filename is the credential store file inside the credentials
	// directory.
	Filename = "server_credential_store.json"

	// ServiceServerID is the reserved client identifier under which the
	// service-server public key is stored. Only "@" + ServiceServerID may
	// request the service-server secret key.
	ServiceServerID = "SERVICE_SERVER_ID"

	// filePerm keeps the store readable and writable by the owner only.
	filePerm = 0o600
)

// Common errors for store operations.
var (
	ErrDuplicateEntry = errors.New("entry already exists")
	ErrNotInitialized = errors.New("store is not initialized")
)

// Entry is a single credential: a principal identifier, its key material
// (16 bytes for symmetric keys, variable for public keys) and the
// administrator flag. Keys marshal as base64 in the JSON document.
type Entry struct {
	ID    string `json:"id"`
	Key   []byte `json:"key"`
	Admin bool   `json:"admin"`
}

// document is the on-disk shape of the store.
type document struct {
	Bootstrapped bool    `json:"bootstrapped"`
	Entries      []Entry `json:"entries"`
}

// Store is the credential store. All operations serialize under a single
// mutex covering the in-memory map and the file; the store is not a hot
// path. Write operations persist before returning, so a crash either left
// the previous file or the new one, never a torn write.
type Store struct {
	mu sync.Mutex

	path         string
	entries      map[string]*Entry
	order        []string
	bootstrapped bool
	dirty        bool
	loaded       bool
}

// New returns an uninitialized store for the given file path. Call Init
// before anything else.
func New(path string) *Store {
	return &Store{
		path:    path,
		entries: make(map[string]*Entry),
	}
}

// Init loads the store file, creating an empty document if none exists.
// A created file is written immediately so that permission problems show
// up at startup rather than at the first registration.
func (s *Store) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.Info("Creating credential store", "path", s.path)
		s.loaded = true
		return s.persistLocked()
	case err != nil:
		return fmt.Errorf("failed to read credential store: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse credential store: %w", err)
	}

	for i := range doc.Entries {
		entry := doc.Entries[i]
		if _, exists := s.entries[entry.ID]; exists {
			return fmt.Errorf("credential store contains duplicate id %q", entry.ID)
		}
		s.entries[entry.ID] = &entry
		s.order = append(s.order, entry.ID)
	}
	s.bootstrapped = doc.Bootstrapped
	s.loaded = true

	logger.Info("Loaded credential store", "path", s.path, "entries", len(s.order))
	return nil
}

// HasEntry reports whether an id is present.
func (s *Store) HasEntry(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[id]
	return ok
}

// GetCredentials returns the key material for an id.
func (s *Store) GetCredentials(id string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return nil, &protocol.NotAvailableError{ID: id}
	}
	return append([]byte(nil), entry.Key...), nil
}

// AddCredentials inserts a new entry and persists. Fails with
// ErrDuplicateEntry if the id exists and overwrite is false.
func (s *Store) AddCredentials(id string, key []byte, admin, overwrite bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return ErrNotInitialized
	}

	existing, exists := s.entries[id]
	if exists && !overwrite {
		return fmt.Errorf("%w: %s", ErrDuplicateEntry, id)
	}

	if exists {
		existing.Key = append([]byte(nil), key...)
		existing.Admin = admin
	} else {
		s.entries[id] = &Entry{ID: id, Key: append([]byte(nil), key...), Admin: admin}
		s.order = append(s.order, id)
	}
	return s.persistLocked()
}

// SetCredentials replaces the key material of an existing entry.
func (s *Store) SetCredentials(id string, key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return &protocol.NotAvailableError{ID: id}
	}
	entry.Key = append([]byte(nil), key...)
	return s.persistLocked()
}

// RemoveEntry removes an entry unconditionally; policy such as "admins may
// not remove themselves" is enforced a layer up, in the controller.
func (s *Store) RemoveEntry(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; !ok {
		return &protocol.NotAvailableError{ID: id}
	}
	delete(s.entries, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return s.persistLocked()
}

// IsAdmin reports the administrator flag; false for absent ids.
func (s *Store) IsAdmin(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	return ok && entry.Admin
}

// SetAdmin updates the administrator flag of an existing entry.
func (s *Store) SetAdmin(id string, admin bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok {
		return &protocol.NotAvailableError{ID: id}
	}
	entry.Admin = admin
	return s.persistLocked()
}

// Size returns the number of entries.
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Bootstrapped reports whether the first user has ever been registered.
func (s *Store) Bootstrapped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bootstrapped
}

// SetBootstrapped persists the bootstrap flag.
func (s *Store) SetBootstrapped(bootstrapped bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.bootstrapped = bootstrapped
	return s.persistLocked()
}

// Shutdown flushes the store if a write failed earlier and left it dirty.
func (s *Store) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}
	return s.persistLocked()
}

// persistLocked writes the whole document to a temporary file in the same
// directory and renames it over the store file, so readers never observe a
// partial write. Callers must hold the mutex.
func (s *Store) persistLocked() error {
	doc := document{Bootstrapped: s.bootstrapped, Entries: make([]Entry, 0, len(s.order))}
	for _, id := range s.order {
		doc.Entries = append(doc.Entries, *s.entries[id])
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		s.dirty = true
		return fmt.Errorf("failed to encode credential store: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		s.dirty = true
		return fmt.Errorf("failed to create temporary store file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(filePerm); err != nil {
		tmp.Close()
		s.dirty = true
		return fmt.Errorf("failed to protect store file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		s.dirty = true
		return fmt.Errorf("failed to write credential store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		s.dirty = true
		return fmt.Errorf("failed to close credential store: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		s.dirty = true
		return fmt.Errorf("failed to replace credential store: %w", err)
	}

	s.dirty = false
	return nil
}
