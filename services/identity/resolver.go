// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package identity resolves which conversation record a turn belongs to.
//
// Anonymous conversations are throwaway: a record past its expiration
// window is silently replaced with a fresh one. Identified conversations
// are durable and ownership-checked against the requesting user.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/shrutib31/soul-buddy/services/graph"
	"github.com/shrutib31/soul-buddy/services/store"
)

var tracer = otel.Tracer("github.com/shrutib31/soul-buddy/services/identity")

// DefaultAnonymousExpiration is how long an anonymous conversation id
// stays reusable before a fresh one is minted in its place.
const DefaultAnonymousExpiration = 24 * time.Hour

var (
	// ErrMissingUserID is returned when an identified-mode turn arrives
	// without a user id.
	ErrMissingUserID = errors.New("missing user_id for identified mode")

	// ErrNotOwner is returned when a user references a conversation bound
	// to someone else.
	ErrNotOwner = errors.New("conversation belongs to a different user")
)

// ConversationStore is the persistence surface the resolver needs.
// Satisfied by store.Store.
type ConversationStore interface {
	CreateConversation(ctx context.Context, conv store.Conversation) error
	GetConversation(ctx context.Context, id string) (*store.Conversation, error)
	BindConversationUser(ctx context.Context, id, userID string) error
	EndConversation(ctx context.Context, id string) error
}

// Resolver maps (conversation id, mode, user id) requests onto
// conversation records, minting new records where needed.
type Resolver struct {
	store      ConversationStore
	expiration time.Duration
	logger     *slog.Logger
}

// NewResolver creates a resolver. A non-positive expiration falls back
// to DefaultAnonymousExpiration.
func NewResolver(cs ConversationStore, expiration time.Duration, logger *slog.Logger) *Resolver {
	if expiration <= 0 {
		expiration = DefaultAnonymousExpiration
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: cs, expiration: expiration, logger: logger}
}

// Resolve returns the conversation id this turn should run under.
//
// An empty id always mints a new record. Anonymous ids past the
// expiration window are replaced rather than reused. Identified ids are
// validated against the requesting user: absent records are created
// bound to the user, unbound records are backfilled, and records bound
// to a different user are rejected with ErrNotOwner.
func (r *Resolver) Resolve(ctx context.Context, conversationID, mode, userID, domain string) (string, error) {
	ctx, span := tracer.Start(ctx, "identity.Resolve")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.mode", mode))

	if mode == graph.ModeIdentified && userID == "" {
		return "", ErrMissingUserID
	}

	if conversationID == "" {
		return r.mint(ctx, mode, userID, domain)
	}

	conv, err := r.store.GetConversation(ctx, conversationID)
	if errors.Is(err, store.ErrConversationNotFound) {
		return r.handleAbsent(ctx, conversationID, mode, userID, domain)
	}
	if err != nil {
		return "", fmt.Errorf("resolving conversation: %w", err)
	}

	switch mode {
	case graph.ModeAnonymous:
		if time.Since(conv.StartedAt) > r.expiration {
			r.logger.Info("anonymous conversation expired, minting replacement",
				"expired_id", conv.ID)
			return r.mint(ctx, mode, userID, domain)
		}
		return conv.ID, nil

	case graph.ModeIdentified:
		switch conv.UserID {
		case userID:
			return conv.ID, nil
		case "":
			if err := r.store.BindConversationUser(ctx, conv.ID, userID); err != nil {
				return "", fmt.Errorf("binding conversation owner: %w", err)
			}
			return conv.ID, nil
		default:
			return "", ErrNotOwner
		}

	default:
		return "", fmt.Errorf("unknown conversation mode %q", mode)
	}
}

// handleAbsent creates a record for a client-supplied id that has no row
// yet. Anonymous clients get a freshly minted id instead; their supplied
// id may be a stale one from a wiped database.
func (r *Resolver) handleAbsent(ctx context.Context, conversationID, mode, userID, domain string) (string, error) {
	if mode == graph.ModeAnonymous {
		return r.mint(ctx, mode, userID, domain)
	}
	if err := r.store.CreateConversation(ctx, store.Conversation{
		ID:     conversationID,
		UserID: userID,
		Mode:   mode,
		Domain: domain,
	}); err != nil {
		return "", fmt.Errorf("creating conversation: %w", err)
	}
	return conversationID, nil
}

// mint creates a new conversation record with a generated id.
func (r *Resolver) mint(ctx context.Context, mode, userID, domain string) (string, error) {
	id := uuid.NewString()
	if mode == graph.ModeAnonymous {
		userID = ""
	}
	if err := r.store.CreateConversation(ctx, store.Conversation{
		ID:     id,
		UserID: userID,
		Mode:   mode,
		Domain: domain,
	}); err != nil {
		return "", fmt.Errorf("creating conversation: %w", err)
	}
	return id, nil
}

// End marks a conversation as finished.
func (r *Resolver) End(ctx context.Context, conversationID string) error {
	return r.store.EndConversation(ctx, conversationID)
}

// Exists reports whether a conversation record is present.
func (r *Resolver) Exists(ctx context.Context, conversationID string) (bool, error) {
	_, err := r.store.GetConversation(ctx, conversationID)
	if errors.Is(err, store.ErrConversationNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
