// Copyright 2026 The Pocketfeed Authors
// SPDX-License-Identifier: Apache-2.0

package feedstore

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// StoreKeyName is the credential entry holding the store encryption key.
const StoreKeyName = "store_key"

// storeKeyBytes is the raw key length; the stored value is hex-encoded.
const storeKeyBytes = 64

// ErrNoSuchKey is returned when a credential entry does not exist.
var ErrNoSuchKey = errors.New("feedstore: no such keychain entry")

// Keychain stores named secrets. Implementations must persist values across
// process restarts.
type Keychain interface {
	Get(name string) (string, error)
	Set(name, value string) error
}

// FileKeychain keeps credentials in a mode-0600 JSON file. It stands in for
// a platform credential store on hosts that have none.
type FileKeychain struct {
	path string
	mu   sync.Mutex
}

// NewFileKeychain creates a keychain backed by the file at path. The file is
// created on first Set.
func NewFileKeychain(path string) *FileKeychain {
	return &FileKeychain{path: path}
}

// Get returns the named entry or ErrNoSuchKey.
func (k *FileKeychain) Get(name string) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	entries, err := k.load()
	if err != nil {
		return "", err
	}
	value, ok := entries[name]
	if !ok {
		return "", ErrNoSuchKey
	}
	return value, nil
}

// Set writes the named entry, creating the backing file if needed.
func (k *FileKeychain) Set(name, value string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	entries, err := k.load()
	if err != nil {
		return err
	}
	entries[name] = value

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode keychain: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(k.path), 0o700); err != nil {
		return fmt.Errorf("failed to create keychain dir: %w", err)
	}
	if err := os.WriteFile(k.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write keychain: %w", err)
	}
	return nil
}

func (k *FileKeychain) load() (map[string]string, error) {
	data, err := os.ReadFile(k.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read keychain: %w", err)
	}
	entries := map[string]string{}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode keychain: %w", err)
	}
	return entries, nil
}

// EnsureStoreKey returns the hex-encoded store encryption key, minting and
// persisting a fresh 64-byte key on first run.
func EnsureStoreKey(kc Keychain) (string, error) {
	key, err := kc.Get(StoreKeyName)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, ErrNoSuchKey) {
		return "", err
	}

	raw := make([]byte, storeKeyBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate store key: %w", err)
	}
	key = hex.EncodeToString(raw)
	if err := kc.Set(StoreKeyName, key); err != nil {
		return "", err
	}
	return key, nil
}
