package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// State is everything the queue persists between runs.
type State struct {
	Seq     uint64      `json:"seq"`
	Pending []*Mutation `json:"pending"`
	Failed  []*Mutation `json:"failed,omitempty"`
}

// StateStore persists queue state durably. The queue saves after every
// mutation so a process restart never loses a captured write.
type StateStore interface {
	Load() (*State, error)
	Save(st *State) error
}

// FileStore keeps queue state in a single JSON file. Writes go through a
// temp file and rename so a crash mid-write never leaves a torn state file.
// A non-empty passphrase encrypts the file at rest with Argon2id + AES-GCM.
type FileStore struct {
	path       string
	passphrase string

	// Key derivation is expensive, so the derived key is cached per salt.
	mu   sync.Mutex
	salt []byte
	key  []byte
}

func NewFileStore(path, passphrase string) *FileStore {
	return &FileStore{path: path, passphrase: passphrase}
}

// Load reads the state file. A missing file is an empty queue, not an error.
func (s *FileStore) Load() (*State, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return &State{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}

	if s.passphrase != "" {
		if len(data) < saltSize {
			return nil, fmt.Errorf("state file too small")
		}
		s.mu.Lock()
		salt := data[:saltSize]
		if !bytes.Equal(salt, s.salt) {
			s.salt = append([]byte(nil), salt...)
			s.key = deriveKey(s.passphrase, s.salt)
		}
		key := s.key
		s.mu.Unlock()

		data, err = unseal(key, data)
		if err != nil {
			return nil, fmt.Errorf("decrypt state file: %w", err)
		}
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parse state file: %w", err)
	}
	return &st, nil
}

// Save writes the state file atomically.
func (s *FileStore) Save(st *State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	if s.passphrase != "" {
		s.mu.Lock()
		if s.key == nil {
			salt, err := generateSalt()
			if err != nil {
				s.mu.Unlock()
				return err
			}
			s.salt = salt
			s.key = deriveKey(s.passphrase, salt)
		}
		key, salt := s.key, s.salt
		s.mu.Unlock()

		data, err = seal(key, salt, data)
		if err != nil {
			return fmt.Errorf("encrypt state: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
