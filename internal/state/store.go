// Package state persists the durable thread→post mapping table.
//
// The table is a single JSON document keyed by thread fingerprint. Every
// mutation rewrites the whole file (no append log, no partial patching) via a
// temp-file + rename so an interrupted write never corrupts the previous
// table.
package state

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/35services/slack-2-wordpress/internal/errors"
)

// Mapping correlates a thread fingerprint with its published post.
// PostID is immutable once assigned; re-syncs update the post's content,
// never its id.
type Mapping struct {
	PostID        int       `json:"post_id"`
	Title         string    `json:"title"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
	Prompt        string    `json:"prompt,omitempty"`
}

// Store is the durable fingerprint→Mapping table.
type Store struct {
	mu       sync.Mutex
	path     string
	mappings map[string]Mapping
	now      func() time.Time // overridable in tests
}

// Open loads the mapping table at path. A missing file is empty state, not an
// error; a malformed file is fatal.
func Open(path string) (*Store, error) {
	s := &Store{
		path:     path,
		mappings: make(map[string]Mapping),
		now:      time.Now,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to read state file: %w", err))
	}

	if err := json.Unmarshal(data, &s.mappings); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("state file %s is malformed: %w", path, err))
	}

	return s, nil
}

// GetPostID returns the post id mapped to fingerprint, if any.
func (s *Store) GetPostID(fingerprint string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mappings[fingerprint]
	return m.PostID, ok
}

// IsMapped reports whether fingerprint has a mapping.
func (s *Store) IsMapped(fingerprint string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.mappings[fingerprint]
	return ok
}

// Get returns a copy of the mapping for fingerprint, if any.
func (s *Store) Get(fingerprint string) (Mapping, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mappings[fingerprint]
	return m, ok
}

// Upsert records or refreshes the mapping for fingerprint and persists the
// whole table. LastUpdatedAt is set to the current time. A nil prompt
// preserves any existing prompt.
//
// If the persist fails, in-memory state is ahead of disk and the caller must
// treat the mapping as not durably committed.
func (s *Store) Upsert(fingerprint string, postID int, title string, prompt *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := Mapping{
		PostID:        postID,
		Title:         title,
		LastUpdatedAt: s.now().UTC(),
	}
	if prompt != nil {
		m.Prompt = *prompt
	} else if existing, ok := s.mappings[fingerprint]; ok {
		m.Prompt = existing.Prompt
	}
	s.mappings[fingerprint] = m

	return s.persistLocked()
}

// GetPrompt returns the derived prompt stored for fingerprint, if any.
func (s *Store) GetPrompt(fingerprint string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mappings[fingerprint]
	if !ok || m.Prompt == "" {
		return "", false
	}
	return m.Prompt, true
}

// SetPrompt stores a derived prompt for an existing mapping. Fails if the
// fingerprint has no mapping yet.
func (s *Store) SetPrompt(fingerprint, prompt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.mappings[fingerprint]
	if !ok {
		return errors.NewNotFound(fingerprint)
	}
	m.Prompt = prompt
	s.mappings[fingerprint] = m

	return s.persistLocked()
}

// Remove deletes the mapping for fingerprint and persists. Removing an
// unmapped fingerprint fails with NOT_FOUND.
func (s *Store) Remove(fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.mappings[fingerprint]; !ok {
		return errors.NewNotFound(fingerprint)
	}
	delete(s.mappings, fingerprint)

	return s.persistLocked()
}

// Entry pairs a fingerprint with its mapping for listing.
type Entry struct {
	Fingerprint string  `json:"fingerprint"`
	Mapping     Mapping `json:"mapping"`
}

// List returns all mappings sorted by fingerprint.
func (s *Store) List() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]Entry, 0, len(s.mappings))
	for fp, m := range s.mappings {
		entries = append(entries, Entry{Fingerprint: fp, Mapping: m})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Fingerprint < entries[j].Fingerprint
	})
	return entries
}

// Len returns the number of mappings.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.mappings)
}

// persistLocked rewrites the whole table. Caller holds s.mu.
func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(s.mappings, "", "  ")
	if err != nil {
		return errors.NewPersistFailed(err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return errors.NewPersistFailed(err)
	}

	// Write to temp file first, then atomic rename to preserve the previous
	// table on failure.
	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return errors.NewPersistFailed(err)
	}
	tempPath := s.path + "." + hex.EncodeToString(randBytes) + ".tmp"

	if err := os.WriteFile(tempPath, append(data, '\n'), 0600); err != nil {
		return errors.NewPersistFailed(err)
	}
	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return errors.NewPersistFailed(err)
	}

	return nil
}
