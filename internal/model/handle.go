package model

import (
	"context"
	"log/slog"
	"sync"

	"github.com/resona-team/resona/internal/audio"
	"github.com/resona-team/resona/internal/engine"
)

// Handle is a cached, ready-to-invoke model bound to the process device
// profile. Invocation is exclusive per handle: the underlying model
// instance is not assumed safe for concurrent inference.
type Handle struct {
	role  Role
	id    string
	model engine.Model
	mu    sync.Mutex
}

// Role returns the synthesis role the handle serves.
func (h *Handle) Role() Role {
	return h.role
}

// ModelID returns the identifier the handle was loaded from.
func (h *Handle) ModelID() string {
	return h.id
}

// Synthesize runs one inference call, serialized with any other call on
// the same handle. Blocking; no cancellation once the underlying call has
// started.
func (h *Handle) Synthesize(ctx context.Context, req *engine.SynthesisRequest) (*audio.Buffer, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.model.Synthesize(ctx, req)
}

// release frees the underlying model. Failures are logged, not returned:
// eviction must always succeed.
func (h *Handle) release() {
	if err := h.model.Release(); err != nil {
		slog.Warn("Failed to release model", "role", h.role, "model_id", h.id, "error", err)
	}
}

// TokenizerHandle is the cached tokenizer, shared across all roles and
// profiles.
type TokenizerHandle struct {
	id  string
	tok engine.Tokenizer
}

// ID returns the tokenizer identifier.
func (t *TokenizerHandle) ID() string {
	return t.id
}

func (t *TokenizerHandle) release() {
	if err := t.tok.Release(); err != nil {
		slog.Warn("Failed to release tokenizer", "tokenizer_id", t.id, "error", err)
	}
}
