// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package events

import "context"

type contextKey struct{}

// NewContext returns a context carrying the emitter, so pipeline steps
// can emit without threading it through every signature.
func NewContext(ctx context.Context, e *Emitter) context.Context {
	return context.WithValue(ctx, contextKey{}, e)
}

// FromContext returns the emitter carried by ctx, or nil. A nil emitter
// is safe to use; every emit on it is a no-op.
func FromContext(ctx context.Context) *Emitter {
	e, _ := ctx.Value(contextKey{}).(*Emitter)
	return e
}
