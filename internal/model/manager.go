package model

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/resona-team/resona/internal/config"
	"github.com/resona-team/resona/internal/device"
	"github.com/resona-team/resona/internal/engine"
)

// tokenizerKey keys the tokenizer slot in the single-flight group. It can
// never collide with a role key.
const tokenizerKey = "tokenizer"

// Manager orchestrates model lifecycle: it resolves roles to concrete
// model identifiers through the active size profile, caches at most one
// loaded instance per role, and invalidates the cache on profile changes.
//
// Construct one Manager in the composition root and pass it by reference;
// there is no ambient global instance.
type Manager struct {
	loader engine.Loader
	dev    device.Profile
	cfg    config.ModelsConfig

	voices    map[string]config.VoiceConfig
	languages []string

	mu            sync.RWMutex
	activeProfile string
	models        map[Role]*Handle
	tokenizer     *TokenizerHandle
	group         singleflight.Group
}

// InfoSnapshot is a read-only projection of the manager state.
type InfoSnapshot struct {
	LoadedRoles       []Role           `json:"loaded_models"`
	TokenizerLoaded   bool             `json:"tokenizer_loaded"`
	ActiveProfile     string           `json:"active_profile"`
	AvailableProfiles []string         `json:"available_profiles"`
	AvailableRoles    []Role           `json:"available_models"`
	Device            string           `json:"device"`
	Precision         device.Precision `json:"precision"`
	Voices            []string         `json:"available_voices"`
	SupportedLangs    []string         `json:"supported_languages"`
}

// NewManager creates a Manager bound to the given device profile. The
// active size profile is resolved from the config (env override included).
func NewManager(cfg *config.Config, loader engine.Loader, dev device.Profile) (*Manager, error) {
	profile, err := cfg.ActiveProfile()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownProfile, err)
	}

	m := &Manager{
		loader:        loader,
		dev:           dev,
		cfg:           cfg.Models,
		voices:        cfg.Voices,
		languages:     cfg.Languages,
		activeProfile: profile,
		models:        make(map[Role]*Handle),
	}

	slog.Info("Model manager initialized",
		"device", dev.Name, "precision", dev.Precision, "profile", profile)

	return m, nil
}

// Load returns a ready model instance for role, loading it on first use.
// A cache hit returns immediately with no I/O. Concurrent misses for the
// same role collapse into a single load; every waiter receives the same
// handle or the same error. On failure the cache is left unchanged.
func (m *Manager) Load(ctx context.Context, role Role, forceReload bool) (*Handle, error) {
	if _, err := ParseRole(string(role)); err != nil {
		return nil, err
	}

	if !forceReload {
		if h := m.cached(role); h != nil {
			slog.Debug("Using cached model", "role", role)
			return h, nil
		}
	}

	v, err, _ := m.group.Do(string(role), func() (any, error) {
		// A waiter queued behind the winning load finds the cache warm.
		if !forceReload {
			if h := m.cached(role); h != nil {
				return h, nil
			}
		}

		return m.loadRole(ctx, role)
	})
	if err != nil {
		return nil, err
	}

	return v.(*Handle), nil
}

// loadRole resolves and loads role. Runs inside the single-flight group,
// without holding m.mu across the load itself. A profile switch landing
// while the load is in flight invalidates the resolved identifier, so the
// insert re-checks the active profile and starts over if it changed; a
// handle resolved through an evicted profile must never enter the cache.
func (m *Manager) loadRole(ctx context.Context, role Role) (*Handle, error) {
	for {
		m.mu.RLock()
		profileID := m.activeProfile
		id, ok := m.cfg.Profiles[profileID][string(role)]
		m.mu.RUnlock()

		if !ok {
			return nil, fmt.Errorf("%w: %q has no entry in profile %q", ErrRoleNotDefined, role, profileID)
		}

		slog.Info("Loading model", "role", role, "profile", profileID, "model_id", id)

		mod, err := m.loader.LoadModel(ctx, id, m.dev)
		if err != nil {
			return nil, &LoadError{Role: role, ModelID: id, Err: err}
		}

		h := &Handle{role: role, id: id, model: mod}

		m.mu.Lock()
		if m.activeProfile != profileID {
			m.mu.Unlock()

			slog.Info("Profile changed during load, reloading",
				"role", role, "stale_profile", profileID, "model_id", id)
			h.release()
			continue
		}
		prev := m.models[role]
		m.models[role] = h
		m.mu.Unlock()

		if prev != nil {
			prev.release()
		}

		slog.Info("Model loaded successfully", "role", role, "model_id", id)
		return h, nil
	}
}

// LoadTokenizer returns the shared tokenizer, loading it on first use. The
// tokenizer slot is keyed independently of any role or profile.
func (m *Manager) LoadTokenizer(ctx context.Context, forceReload bool) (*TokenizerHandle, error) {
	if !forceReload {
		m.mu.RLock()
		t := m.tokenizer
		m.mu.RUnlock()

		if t != nil {
			slog.Debug("Using cached tokenizer")
			return t, nil
		}
	}

	v, err, _ := m.group.Do(tokenizerKey, func() (any, error) {
		if !forceReload {
			m.mu.RLock()
			t := m.tokenizer
			m.mu.RUnlock()

			if t != nil {
				return t, nil
			}
		}

		id := m.cfg.Tokenizer
		slog.Info("Loading tokenizer", "tokenizer_id", id)

		tok, err := m.loader.LoadTokenizer(ctx, id, m.dev)
		if err != nil {
			return nil, &LoadError{ModelID: id, Err: err}
		}

		t := &TokenizerHandle{id: id, tok: tok}

		m.mu.Lock()
		prev := m.tokenizer
		m.tokenizer = t
		m.mu.Unlock()

		if prev != nil {
			prev.release()
		}

		slog.Info("Tokenizer loaded successfully", "tokenizer_id", id)
		return t, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*TokenizerHandle), nil
}

// SetProfile switches the active size profile. Switching to a different
// profile evicts every cached model (not the tokenizer) before the swap,
// so stale role bindings are never served.
func (m *Manager) SetProfile(id string) error {
	if _, ok := m.cfg.Profiles[id]; !ok {
		return fmt.Errorf("%w: %q, available: %v", ErrUnknownProfile, id, m.AvailableProfiles())
	}

	m.mu.Lock()
	if id == m.activeProfile {
		m.mu.Unlock()
		return nil
	}

	slog.Info("Changing model profile", "from", m.activeProfile, "to", id)

	evicted := m.evictModels()
	m.activeProfile = id
	m.mu.Unlock()

	for _, h := range evicted {
		h.release()
	}

	return nil
}

// ActiveProfile returns the active size profile id.
func (m *Manager) ActiveProfile() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.activeProfile
}

// AvailableProfiles returns the defined profile ids, sorted.
func (m *Manager) AvailableProfiles() []string {
	ids := make([]string, 0, len(m.cfg.Profiles))
	for id := range m.cfg.Profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return ids
}

// Unload evicts a single cached model; no-op when the role is not cached.
func (m *Manager) Unload(role Role) {
	m.mu.Lock()
	h, ok := m.models[role]
	delete(m.models, role)
	m.mu.Unlock()

	if ok {
		h.release()
		slog.Info("Unloaded model", "role", role)
	}
}

// ClearCache evicts every cached entry, models and tokenizer, and releases
// device-side cached allocations when running on an accelerator. This is
// the authoritative cleanup path invoked at shutdown.
func (m *Manager) ClearCache(ctx context.Context) {
	m.mu.Lock()
	evicted := m.evictModels()
	tok := m.tokenizer
	m.tokenizer = nil
	m.mu.Unlock()

	for _, h := range evicted {
		h.release()
	}
	if tok != nil {
		tok.release()
	}

	if m.dev.IsAccelerator() {
		if releaser, ok := m.loader.(engine.DeviceCacheReleaser); ok {
			if err := releaser.ReleaseDeviceCache(ctx); err != nil {
				slog.Warn("Failed to release device cache", "error", err)
			}
		}
	}

	slog.Info("Cleared model cache")
}

// evictModels empties the model cache and returns the evicted handles.
// Callers release them outside the lock. Caller must hold m.mu.
func (m *Manager) evictModels() []*Handle {
	evicted := make([]*Handle, 0, len(m.models))
	for _, h := range m.models {
		evicted = append(evicted, h)
	}
	m.models = make(map[Role]*Handle)

	return evicted
}

// Prewarm proactively loads the tokenizer and the configured default role.
// Best-effort: failures are logged and a later on-demand load is still
// attempted. Intended to run in a background goroutine right after start.
func (m *Manager) Prewarm(ctx context.Context) {
	if !m.cfg.Prewarm.Enabled {
		return
	}

	if _, err := m.LoadTokenizer(ctx, false); err != nil {
		slog.Warn("Tokenizer pre-load skipped", "error", err)
		return
	}

	role, err := ParseRole(m.cfg.Prewarm.Role)
	if err != nil {
		slog.Warn("Prewarm role invalid", "role", m.cfg.Prewarm.Role, "error", err)
		return
	}

	if _, err := m.Load(ctx, role, false); err != nil {
		slog.Warn("Model pre-load skipped", "role", role, "error", err)
		return
	}

	slog.Info("Prewarm complete", "role", role)
}

// Voices returns the configured pre-built voice table. The result is a
// copy; mutating it does not affect the manager.
func (m *Manager) Voices() map[string]config.VoiceConfig {
	return maps.Clone(m.voices)
}

// Languages returns the supported language list.
func (m *Manager) Languages() []string {
	return m.languages
}

// Info returns a read-only snapshot of the cache state at call time.
func (m *Manager) Info() InfoSnapshot {
	m.mu.RLock()
	loaded := make([]Role, 0, len(m.models))
	for role := range m.models {
		loaded = append(loaded, role)
	}
	tokenizerLoaded := m.tokenizer != nil
	profileID := m.activeProfile
	m.mu.RUnlock()

	sort.Slice(loaded, func(i, j int) bool { return loaded[i] < loaded[j] })

	available := make([]Role, 0, len(m.cfg.Profiles[profileID]))
	for r := range m.cfg.Profiles[profileID] {
		available = append(available, Role(r))
	}
	sort.Slice(available, func(i, j int) bool { return available[i] < available[j] })

	voices := make([]string, 0, len(m.voices))
	for v := range m.voices {
		voices = append(voices, v)
	}
	sort.Strings(voices)

	return InfoSnapshot{
		LoadedRoles:       loaded,
		TokenizerLoaded:   tokenizerLoaded,
		ActiveProfile:     profileID,
		AvailableProfiles: m.AvailableProfiles(),
		AvailableRoles:    available,
		Device:            m.dev.Name,
		Precision:         m.dev.Precision,
		Voices:            voices,
		SupportedLangs:    m.languages,
	}
}

func (m *Manager) cached(role Role) *Handle {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.models[role]
}
