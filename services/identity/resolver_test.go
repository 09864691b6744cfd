// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shrutib31/soul-buddy/services/graph"
	"github.com/shrutib31/soul-buddy/services/store"
)

// fakeStore is an in-memory ConversationStore.
type fakeStore struct {
	conversations map[string]*store.Conversation
}

func newFakeStore() *fakeStore {
	return &fakeStore{conversations: make(map[string]*store.Conversation)}
}

func (f *fakeStore) CreateConversation(_ context.Context, conv store.Conversation) error {
	if conv.StartedAt.IsZero() {
		conv.StartedAt = time.Now().UTC()
	}
	f.conversations[conv.ID] = &conv
	return nil
}

func (f *fakeStore) GetConversation(_ context.Context, id string) (*store.Conversation, error) {
	conv, ok := f.conversations[id]
	if !ok {
		return nil, store.ErrConversationNotFound
	}
	copied := *conv
	return &copied, nil
}

func (f *fakeStore) BindConversationUser(_ context.Context, id, userID string) error {
	conv, ok := f.conversations[id]
	if !ok || conv.UserID != "" {
		return store.ErrConversationNotFound
	}
	conv.UserID = userID
	return nil
}

func (f *fakeStore) EndConversation(_ context.Context, id string) error {
	conv, ok := f.conversations[id]
	if !ok {
		return store.ErrConversationNotFound
	}
	now := time.Now().UTC()
	conv.EndedAt = &now
	return nil
}

func TestResolve_EmptyIDMintsNewConversation(t *testing.T) {
	fs := newFakeStore()
	r := NewResolver(fs, 0, nil)

	id, err := r.Resolve(context.Background(), "", graph.ModeAnonymous, "", "student")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	conv := fs.conversations[id]
	require.NotNil(t, conv)
	assert.Equal(t, graph.ModeAnonymous, conv.Mode)
	assert.Equal(t, "student", conv.Domain)
	assert.Empty(t, conv.UserID)
}

func TestResolve_IdentifiedRequiresUserID(t *testing.T) {
	r := NewResolver(newFakeStore(), 0, nil)

	_, err := r.Resolve(context.Background(), "", graph.ModeIdentified, "", "student")
	assert.ErrorIs(t, err, ErrMissingUserID)
}

func TestResolve_AnonymousReusesFreshConversation(t *testing.T) {
	fs := newFakeStore()
	r := NewResolver(fs, 0, nil)

	fs.conversations["conv-1"] = &store.Conversation{
		ID: "conv-1", Mode: graph.ModeAnonymous, StartedAt: time.Now().Add(-time.Hour),
	}

	id, err := r.Resolve(context.Background(), "conv-1", graph.ModeAnonymous, "", "")
	require.NoError(t, err)
	assert.Equal(t, "conv-1", id)
}

func TestResolve_AnonymousExpiredMintsReplacement(t *testing.T) {
	fs := newFakeStore()
	r := NewResolver(fs, 0, nil)

	fs.conversations["conv-1"] = &store.Conversation{
		ID: "conv-1", Mode: graph.ModeAnonymous, StartedAt: time.Now().Add(-25 * time.Hour),
	}

	id, err := r.Resolve(context.Background(), "conv-1", graph.ModeAnonymous, "", "")
	require.NoError(t, err)
	assert.NotEqual(t, "conv-1", id)
	assert.Contains(t, fs.conversations, id)
}

func TestResolve_AnonymousUnknownIDMintsNew(t *testing.T) {
	fs := newFakeStore()
	r := NewResolver(fs, 0, nil)

	id, err := r.Resolve(context.Background(), "never-seen", graph.ModeAnonymous, "", "")
	require.NoError(t, err)
	assert.NotEqual(t, "never-seen", id)
	assert.Contains(t, fs.conversations, id)
}

func TestResolve_IdentifiedOwnership(t *testing.T) {
	ctx := context.Background()

	t.Run("absent id creates bound record", func(t *testing.T) {
		fs := newFakeStore()
		r := NewResolver(fs, 0, nil)

		id, err := r.Resolve(ctx, "conv-1", graph.ModeIdentified, "user-1", "student")
		require.NoError(t, err)
		assert.Equal(t, "conv-1", id)
		assert.Equal(t, "user-1", fs.conversations["conv-1"].UserID)
	})

	t.Run("owner reuses record", func(t *testing.T) {
		fs := newFakeStore()
		r := NewResolver(fs, 0, nil)
		fs.conversations["conv-1"] = &store.Conversation{
			ID: "conv-1", Mode: graph.ModeIdentified, UserID: "user-1", StartedAt: time.Now(),
		}

		id, err := r.Resolve(ctx, "conv-1", graph.ModeIdentified, "user-1", "")
		require.NoError(t, err)
		assert.Equal(t, "conv-1", id)
	})

	t.Run("unbound record is backfilled", func(t *testing.T) {
		fs := newFakeStore()
		r := NewResolver(fs, 0, nil)
		fs.conversations["conv-1"] = &store.Conversation{
			ID: "conv-1", Mode: graph.ModeIdentified, StartedAt: time.Now(),
		}

		id, err := r.Resolve(ctx, "conv-1", graph.ModeIdentified, "user-1", "")
		require.NoError(t, err)
		assert.Equal(t, "conv-1", id)
		assert.Equal(t, "user-1", fs.conversations["conv-1"].UserID)
	})

	t.Run("different owner is rejected", func(t *testing.T) {
		fs := newFakeStore()
		r := NewResolver(fs, 0, nil)
		fs.conversations["conv-1"] = &store.Conversation{
			ID: "conv-1", Mode: graph.ModeIdentified, UserID: "user-1", StartedAt: time.Now(),
		}

		_, err := r.Resolve(ctx, "conv-1", graph.ModeIdentified, "user-2", "")
		assert.ErrorIs(t, err, ErrNotOwner)
	})
}

func TestResolve_UnknownMode(t *testing.T) {
	fs := newFakeStore()
	r := NewResolver(fs, 0, nil)
	fs.conversations["conv-1"] = &store.Conversation{ID: "conv-1", StartedAt: time.Now()}

	_, err := r.Resolve(context.Background(), "conv-1", "ghost", "", "")
	assert.Error(t, err)
}

func TestResolver_EndAndExists(t *testing.T) {
	fs := newFakeStore()
	r := NewResolver(fs, 0, nil)
	ctx := context.Background()

	id, err := r.Resolve(ctx, "", graph.ModeAnonymous, "", "")
	require.NoError(t, err)

	ok, err := r.Exists(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, r.End(ctx, id))
	assert.NotNil(t, fs.conversations[id].EndedAt)

	ok, err = r.Exists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}
