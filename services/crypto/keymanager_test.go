// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, secret string) *KeyManager {
	t.Helper()
	sealer, err := NewLocalSeedEncrypter(secret)
	require.NoError(t, err)
	km := NewKeyManager(sealer)
	t.Cleanup(km.Close)
	return km
}

func TestNewLocalSeedEncrypter_EmptySecret(t *testing.T) {
	_, err := NewLocalSeedEncrypter("   ")
	assert.ErrorIs(t, err, ErrEmptySecret)
}

func TestKeyManager_RoundTrip(t *testing.T) {
	km := newTestManager(t, "test-secret")

	sealed, err := km.EncryptMessage("conv-1", "I have an exam tomorrow and I can't sleep")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sealed, EncMarker))

	plain, err := km.DecryptMessage("conv-1", sealed)
	require.NoError(t, err)
	assert.Equal(t, "I have an exam tomorrow and I can't sleep", plain)
}

func TestKeyManager_NonDeterministicCiphertext(t *testing.T) {
	km := newTestManager(t, "test-secret")

	first, err := km.EncryptMessage("conv-1", "same message")
	require.NoError(t, err)
	second, err := km.EncryptMessage("conv-1", "same message")
	require.NoError(t, err)

	// Random nonces mean identical plaintext never repeats on the wire.
	assert.NotEqual(t, first, second)
}

func TestKeyManager_KeysScopedPerConversation(t *testing.T) {
	km := newTestManager(t, "test-secret")

	sealed, err := km.EncryptMessage("conv-1", "private")
	require.NoError(t, err)

	_, err = km.DecryptMessage("conv-2", sealed)
	assert.Error(t, err)
}

func TestKeyManager_SurvivesRestart(t *testing.T) {
	first := newTestManager(t, "shared-secret")
	sealed, err := first.EncryptMessage("conv-1", "persisted turn")
	require.NoError(t, err)

	// A new manager with the same deployment secret must read old rows.
	second := newTestManager(t, "shared-secret")
	plain, err := second.DecryptMessage("conv-1", sealed)
	require.NoError(t, err)
	assert.Equal(t, "persisted turn", plain)
}

func TestKeyManager_DifferentSecretsCannotDecrypt(t *testing.T) {
	first := newTestManager(t, "secret-a")
	sealed, err := first.EncryptMessage("conv-1", "private")
	require.NoError(t, err)

	second := newTestManager(t, "secret-b")
	_, err = second.DecryptMessage("conv-1", sealed)
	assert.Error(t, err)
}

func TestKeyManager_PlaintextPassthrough(t *testing.T) {
	km := newTestManager(t, "test-secret")

	plain, err := km.DecryptMessage("conv-1", "a legacy unencrypted row")
	require.NoError(t, err)
	assert.Equal(t, "a legacy unencrypted row", plain)
}

func TestKeyManager_MalformedCiphertext(t *testing.T) {
	km := newTestManager(t, "test-secret")

	tests := []struct {
		name string
		data string
	}{
		{"invalid base64", EncMarker + "not-base64!!!"},
		{"shorter than nonce", EncMarker + "YWJj"},
		{"empty payload", EncMarker},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := km.DecryptMessage("conv-1", tc.data)
			assert.Error(t, err)
		})
	}
}
