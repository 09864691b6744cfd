// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package crypto derives per-conversation encryption keys and seals
// transcript text at rest.
//
// Key hierarchy: a static seed is sealed by a SeedEncrypter, hashed with
// SHA-256 into a process-wide master key, and expanded per conversation
// with HKDF-SHA256. Messages are sealed with AES-256-GCM and stored as
// base64 behind a version marker so plaintext rows written before
// encryption was enabled still read back cleanly.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/hkdf"
)

const (
	// EncMarker prefixes every ciphertext this package produces. Values
	// without the marker are treated as legacy plaintext on decrypt.
	EncMarker = "ENC:v1:"

	// KeySize is the AES-256 key length in bytes.
	KeySize = 32

	// NonceSize is the GCM nonce length in bytes, prepended to ciphertext.
	NonceSize = 12

	// VaultKeyName identifies the key derivation scheme in audit rows.
	VaultKeyName = "local-hkdf-v1"

	masterKeySeed    = "soul-buddy-master-key-seed-v1"
	conversationSalt = "soul-buddy-conversation-salt"
)

// memguardInitOnce ensures memguard interrupt handling is installed once.
var memguardInitOnce sync.Once

// ErrEmptySecret is returned when a local seed encrypter is constructed
// without key material.
var ErrEmptySecret = errors.New("crypto: seed encrypter secret is empty")

// SeedEncrypter seals the static master key seed into key material.
//
// Implementations must be deterministic for a given deployment: the master
// key is recomputed from the sealed seed on every process start, and a
// non-deterministic sealer would orphan previously written ciphertext.
type SeedEncrypter interface {
	SealSeed(seed []byte) ([]byte, error)
}

// LocalSeedEncrypter seals the seed with HMAC-SHA256 over a deployment
// secret. It stands in for an external KMS when none is configured.
type LocalSeedEncrypter struct {
	secret []byte
}

// NewLocalSeedEncrypter builds a sealer from the deployment secret.
func NewLocalSeedEncrypter(secret string) (*LocalSeedEncrypter, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrEmptySecret
	}
	return &LocalSeedEncrypter{secret: []byte(secret)}, nil
}

// SealSeed returns HMAC-SHA256(secret, seed).
func (e *LocalSeedEncrypter) SealSeed(seed []byte) ([]byte, error) {
	mac := hmac.New(sha256.New, e.secret)
	mac.Write(seed)
	return mac.Sum(nil), nil
}

// KeyManager derives conversation keys and seals message text.
//
// The master key is derived once and held in an mlocked buffer for the
// life of the process. Safe for concurrent use.
type KeyManager struct {
	sealer SeedEncrypter

	mu     sync.Mutex
	master *memguard.LockedBuffer
}

// NewKeyManager creates a key manager backed by the given sealer.
// The master key is derived lazily on first use.
func NewKeyManager(sealer SeedEncrypter) *KeyManager {
	memguardInitOnce.Do(func() {
		memguard.CatchInterrupt()
	})
	return &KeyManager{sealer: sealer}
}

// masterKey returns the process-wide master key, deriving and caching it
// on first call. Callers must not retain the returned slice past the
// lifetime of the manager.
func (m *KeyManager) masterKey() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.master != nil {
		return m.master.Bytes(), nil
	}

	sealed, err := m.sealer.SealSeed([]byte(masterKeySeed))
	if err != nil {
		return nil, fmt.Errorf("seal master seed: %w", err)
	}
	sum := sha256.Sum256(sealed)
	m.master = memguard.NewBufferFromBytes(sum[:])
	return m.master.Bytes(), nil
}

// conversationKey expands a KeySize key for one conversation via
// HKDF-SHA256 with a fixed salt and a conversation-scoped info string.
func (m *KeyManager) conversationKey(conversationID string) ([]byte, error) {
	master, err := m.masterKey()
	if err != nil {
		return nil, err
	}

	kdf := hkdf.New(sha256.New, master, []byte(conversationSalt), []byte("conversation:"+conversationID))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("derive conversation key: %w", err)
	}
	return key, nil
}

// EncryptMessage seals plaintext under the conversation's derived key.
// Output is EncMarker + base64(nonce || ciphertext).
func (m *KeyManager) EncryptMessage(conversationID, plaintext string) (string, error) {
	key, err := m.conversationKey(conversationID)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("init gcm: %w", err)
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return EncMarker + base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptMessage reverses EncryptMessage. Input without the version marker
// is returned unchanged so pre-encryption rows remain readable.
func (m *KeyManager) DecryptMessage(conversationID, data string) (string, error) {
	if !strings.HasPrefix(data, EncMarker) {
		return data, nil
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(data, EncMarker))
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	if len(raw) < NonceSize {
		return "", errors.New("crypto: ciphertext shorter than nonce")
	}

	key, err := m.conversationKey(conversationID)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("init gcm: %w", err)
	}

	plain, err := gcm.Open(nil, raw[:NonceSize], raw[NonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("open ciphertext: %w", err)
	}
	return string(plain), nil
}

// Close wipes the cached master key. The manager must not be used after
// Close returns.
func (m *KeyManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.master != nil {
		m.master.Destroy()
		m.master = nil
	}
}
