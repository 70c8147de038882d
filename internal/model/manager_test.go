package model

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/resona-team/resona/internal/audio"
	"github.com/resona-team/resona/internal/config"
	"github.com/resona-team/resona/internal/device"
	"github.com/resona-team/resona/internal/engine"
)

// --- Mock types ---

type MockModel struct {
	mock.Mock
}

func (m *MockModel) ID() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockModel) Synthesize(ctx context.Context, req *engine.SynthesisRequest) (*audio.Buffer, error) {
	args := m.Called(ctx, req)
	if buf, ok := args.Get(0).(*audio.Buffer); ok {
		return buf, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockModel) Release() error {
	args := m.Called()
	return args.Error(0)
}

type MockTokenizer struct {
	mock.Mock
}

func (m *MockTokenizer) ID() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockTokenizer) Release() error {
	args := m.Called()
	return args.Error(0)
}

type MockLoader struct {
	mock.Mock
}

func (m *MockLoader) LoadModel(ctx context.Context, id string, dev device.Profile) (engine.Model, error) {
	args := m.Called(ctx, id, dev)
	if mod, ok := args.Get(0).(engine.Model); ok {
		return mod, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLoader) LoadTokenizer(ctx context.Context, id string, dev device.Profile) (engine.Tokenizer, error) {
	args := m.Called(ctx, id, dev)
	if tok, ok := args.Get(0).(engine.Tokenizer); ok {
		return tok, args.Error(1)
	}
	return nil, args.Error(1)
}

type MockReleaserLoader struct {
	MockLoader
}

func (m *MockReleaserLoader) ReleaseDeviceCache(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- Helpers ---

func testConfig() *config.Config {
	return &config.Config{
		Version: "1",
		Models: config.ModelsConfig{
			DefaultProfile: "small",
			Tokenizer:      "acme/tokenizer",
			Profiles: map[string]map[string]string{
				"small": {
					"custom_voice": "acme/small-custom",
					"voice_design": "acme/small-design",
				},
				"large": {
					"custom_voice": "acme/large-custom",
					"voice_design": "acme/large-design",
					"voice_clone":  "acme/large-base",
				},
			},
			Prewarm: config.PrewarmConfig{Enabled: true, Role: "custom_voice"},
		},
		Voices:    map[string]config.VoiceConfig{"Vivian": {NativeLanguage: "Chinese"}},
		Languages: []string{"Chinese", "English"},
	}
}

func cpuProfile() device.Profile {
	return device.Profile{Kind: device.KindCPU, Name: "cpu", Precision: device.PrecisionFull}
}

// --- Tests ---

func TestManager_LoadCachesPerRole(t *testing.T) {
	loader := new(MockLoader)
	mod := new(MockModel)
	loader.On("LoadModel", mock.Anything, "acme/small-custom", mock.Anything).Return(mod, nil).Once()

	m, err := NewManager(testConfig(), loader, cpuProfile())
	require.NoError(t, err)

	h1, err := m.Load(context.Background(), RoleCustomVoice, false)
	require.NoError(t, err)
	assert.Equal(t, "acme/small-custom", h1.ModelID())

	h2, err := m.Load(context.Background(), RoleCustomVoice, false)
	require.NoError(t, err)
	assert.Same(t, h1, h2)

	loader.AssertExpectations(t)
}

func TestManager_LoadUnknownRole(t *testing.T) {
	loader := new(MockLoader)
	m, err := NewManager(testConfig(), loader, cpuProfile())
	require.NoError(t, err)

	_, err = m.Load(context.Background(), Role("banana"), false)
	assert.ErrorIs(t, err, ErrUnknownRole)
	assert.True(t, IsConfiguration(err))
	loader.AssertNotCalled(t, "LoadModel", mock.Anything, mock.Anything, mock.Anything)
}

func TestManager_LoadRoleNotDefinedInProfile(t *testing.T) {
	loader := new(MockLoader)
	m, err := NewManager(testConfig(), loader, cpuProfile())
	require.NoError(t, err)

	// "small" has no voice_clone entry.
	_, err = m.Load(context.Background(), RoleVoiceClone, false)
	assert.ErrorIs(t, err, ErrRoleNotDefined)
	assert.True(t, IsConfiguration(err))
	assert.Empty(t, m.Info().LoadedRoles)
}

func TestManager_LoadFailureLeavesCacheUnchanged(t *testing.T) {
	loader := new(MockLoader)
	mod := new(MockModel)
	boom := errors.New("out of memory")
	loader.On("LoadModel", mock.Anything, "acme/small-custom", mock.Anything).Return(nil, boom).Once()
	loader.On("LoadModel", mock.Anything, "acme/small-custom", mock.Anything).Return(mod, nil).Once()

	m, err := NewManager(testConfig(), loader, cpuProfile())
	require.NoError(t, err)

	_, err = m.Load(context.Background(), RoleCustomVoice, false)
	require.Error(t, err)

	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, RoleCustomVoice, loadErr.Role)
	assert.ErrorIs(t, err, boom)
	assert.False(t, IsConfiguration(err))
	assert.Empty(t, m.Info().LoadedRoles)

	// A retry goes back to the loader instead of serving the failure.
	h, err := m.Load(context.Background(), RoleCustomVoice, false)
	require.NoError(t, err)
	assert.Equal(t, "acme/small-custom", h.ModelID())

	loader.AssertExpectations(t)
}

func TestManager_ForceReloadBypassesCache(t *testing.T) {
	loader := new(MockLoader)
	first := new(MockModel)
	second := new(MockModel)
	first.On("Release").Return(nil).Once()
	loader.On("LoadModel", mock.Anything, "acme/small-custom", mock.Anything).Return(first, nil).Once()
	loader.On("LoadModel", mock.Anything, "acme/small-custom", mock.Anything).Return(second, nil).Once()

	m, err := NewManager(testConfig(), loader, cpuProfile())
	require.NoError(t, err)

	h1, err := m.Load(context.Background(), RoleCustomVoice, false)
	require.NoError(t, err)

	h2, err := m.Load(context.Background(), RoleCustomVoice, true)
	require.NoError(t, err)
	assert.NotSame(t, h1, h2)

	loader.AssertExpectations(t)
	first.AssertExpectations(t)
}

func TestManager_SetProfileEvictsAndRebinds(t *testing.T) {
	loader := new(MockLoader)
	small := new(MockModel)
	large := new(MockModel)
	small.On("Release").Return(nil).Once()
	loader.On("LoadModel", mock.Anything, "acme/small-custom", mock.Anything).Return(small, nil).Once()
	loader.On("LoadModel", mock.Anything, "acme/large-custom", mock.Anything).Return(large, nil).Once()

	m, err := NewManager(testConfig(), loader, cpuProfile())
	require.NoError(t, err)

	_, err = m.Load(context.Background(), RoleCustomVoice, false)
	require.NoError(t, err)

	require.NoError(t, m.SetProfile("large"))
	assert.Equal(t, "large", m.ActiveProfile())
	assert.Empty(t, m.Info().LoadedRoles)

	h, err := m.Load(context.Background(), RoleCustomVoice, false)
	require.NoError(t, err)
	assert.Equal(t, "acme/large-custom", h.ModelID())

	loader.AssertExpectations(t)
	small.AssertExpectations(t)
}

func TestManager_SetProfileUnknown(t *testing.T) {
	m, err := NewManager(testConfig(), new(MockLoader), cpuProfile())
	require.NoError(t, err)

	err = m.SetProfile("gigantic")
	assert.ErrorIs(t, err, ErrUnknownProfile)
	assert.Equal(t, "small", m.ActiveProfile())
}

func TestManager_SetProfileSameIsNoop(t *testing.T) {
	loader := new(MockLoader)
	mod := new(MockModel)
	loader.On("LoadModel", mock.Anything, "acme/small-custom", mock.Anything).Return(mod, nil).Once()

	m, err := NewManager(testConfig(), loader, cpuProfile())
	require.NoError(t, err)

	_, err = m.Load(context.Background(), RoleCustomVoice, false)
	require.NoError(t, err)

	require.NoError(t, m.SetProfile("small"))
	assert.Len(t, m.Info().LoadedRoles, 1)
	mod.AssertNotCalled(t, "Release")
}

func TestManager_Unload(t *testing.T) {
	loader := new(MockLoader)
	mod := new(MockModel)
	mod.On("Release").Return(nil).Once()
	loader.On("LoadModel", mock.Anything, "acme/small-custom", mock.Anything).Return(mod, nil).Once()

	m, err := NewManager(testConfig(), loader, cpuProfile())
	require.NoError(t, err)

	_, err = m.Load(context.Background(), RoleCustomVoice, false)
	require.NoError(t, err)

	m.Unload(RoleCustomVoice)
	assert.Empty(t, m.Info().LoadedRoles)

	// Unloading an absent role is a no-op.
	m.Unload(RoleVoiceDesign)

	mod.AssertExpectations(t)
}

func TestManager_ClearCacheReleasesEverything(t *testing.T) {
	loader := new(MockReleaserLoader)
	mod := new(MockModel)
	tok := new(MockTokenizer)
	mod.On("Release").Return(nil).Once()
	tok.On("Release").Return(nil).Once()
	loader.On("LoadModel", mock.Anything, "acme/small-custom", mock.Anything).Return(mod, nil).Once()
	loader.On("LoadTokenizer", mock.Anything, "acme/tokenizer", mock.Anything).Return(tok, nil).Once()
	loader.On("ReleaseDeviceCache", mock.Anything).Return(nil).Once()

	dev := device.Profile{Kind: device.KindAccelerator, Name: "cuda:0", Precision: device.PrecisionReduced}
	m, err := NewManager(testConfig(), loader, dev)
	require.NoError(t, err)

	_, err = m.Load(context.Background(), RoleCustomVoice, false)
	require.NoError(t, err)
	_, err = m.LoadTokenizer(context.Background(), false)
	require.NoError(t, err)

	m.ClearCache(context.Background())

	info := m.Info()
	assert.Empty(t, info.LoadedRoles)
	assert.False(t, info.TokenizerLoaded)

	loader.AssertExpectations(t)
	mod.AssertExpectations(t)
	tok.AssertExpectations(t)
}

func TestManager_ClearCacheOnCPUSkipsDeviceRelease(t *testing.T) {
	loader := new(MockReleaserLoader)
	m, err := NewManager(testConfig(), loader, cpuProfile())
	require.NoError(t, err)

	m.ClearCache(context.Background())
	loader.AssertNotCalled(t, "ReleaseDeviceCache", mock.Anything)
}

// slowLoader counts loads and blocks long enough for concurrent callers to
// pile onto the same in-flight load.
type slowLoader struct {
	loads atomic.Int32
}

func (l *slowLoader) LoadModel(ctx context.Context, id string, dev device.Profile) (engine.Model, error) {
	l.loads.Add(1)
	time.Sleep(50 * time.Millisecond)
	return &staticModel{id: id}, nil
}

func (l *slowLoader) LoadTokenizer(ctx context.Context, id string, dev device.Profile) (engine.Tokenizer, error) {
	l.loads.Add(1)
	time.Sleep(50 * time.Millisecond)
	return &staticTokenizer{id: id}, nil
}

type staticModel struct{ id string }

func (m *staticModel) ID() string { return m.id }
func (m *staticModel) Synthesize(ctx context.Context, req *engine.SynthesisRequest) (*audio.Buffer, error) {
	return &audio.Buffer{Samples: []float64{0}, SampleRate: 24000}, nil
}
func (m *staticModel) Release() error { return nil }

type staticTokenizer struct{ id string }

func (t *staticTokenizer) ID() string     { return t.id }
func (t *staticTokenizer) Release() error { return nil }

func TestManager_ConcurrentLoadCollapses(t *testing.T) {
	loader := &slowLoader{}
	m, err := NewManager(testConfig(), loader, cpuProfile())
	require.NoError(t, err)

	const callers = 16

	var wg sync.WaitGroup
	handles := make([]*Handle, callers)
	for i := 0; i < callers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := m.Load(context.Background(), RoleCustomVoice, false)
			assert.NoError(t, err)
			handles[i] = h
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), loader.loads.Load())
	for _, h := range handles[1:] {
		assert.Same(t, handles[0], h)
	}
}

// releasableModel tracks whether Release was invoked.
type releasableModel struct {
	id       string
	released atomic.Bool
}

func (m *releasableModel) ID() string { return m.id }
func (m *releasableModel) Synthesize(ctx context.Context, req *engine.SynthesisRequest) (*audio.Buffer, error) {
	return &audio.Buffer{Samples: []float64{0}, SampleRate: 24000}, nil
}
func (m *releasableModel) Release() error {
	m.released.Store(true)
	return nil
}

// blockingLoader parks each LoadModel call until the test unblocks it,
// reporting the identifier being loaded through entered.
type blockingLoader struct {
	entered chan string
	unblock chan struct{}
	models  []*releasableModel
	mu      sync.Mutex
}

func (l *blockingLoader) LoadModel(ctx context.Context, id string, dev device.Profile) (engine.Model, error) {
	l.entered <- id
	<-l.unblock

	m := &releasableModel{id: id}
	l.mu.Lock()
	l.models = append(l.models, m)
	l.mu.Unlock()
	return m, nil
}

func (l *blockingLoader) LoadTokenizer(ctx context.Context, id string, dev device.Profile) (engine.Tokenizer, error) {
	return &staticTokenizer{id: id}, nil
}

func TestManager_SetProfileDuringInFlightLoad(t *testing.T) {
	loader := &blockingLoader{
		entered: make(chan string),
		unblock: make(chan struct{}),
	}
	m, err := NewManager(testConfig(), loader, cpuProfile())
	require.NoError(t, err)

	done := make(chan *Handle, 1)
	go func() {
		h, err := m.Load(context.Background(), RoleCustomVoice, false)
		assert.NoError(t, err)
		done <- h
	}()

	// The load is parked while still bound to the "small" profile.
	assert.Equal(t, "acme/small-custom", <-loader.entered)

	require.NoError(t, m.SetProfile("large"))

	// Unblocking the stale load must trigger a reload under the new
	// profile instead of caching the stale binding.
	loader.unblock <- struct{}{}
	assert.Equal(t, "acme/large-custom", <-loader.entered)
	loader.unblock <- struct{}{}

	h := <-done
	assert.Equal(t, "acme/large-custom", h.ModelID())

	// The handle resolved through the evicted profile was released, never
	// cached.
	require.Len(t, loader.models, 2)
	assert.True(t, loader.models[0].released.Load())
	assert.False(t, loader.models[1].released.Load())

	cached, err := m.Load(context.Background(), RoleCustomVoice, false)
	require.NoError(t, err)
	assert.Equal(t, "acme/large-custom", cached.ModelID())
}

func TestManager_VoicesReturnsCopy(t *testing.T) {
	m, err := NewManager(testConfig(), new(MockLoader), cpuProfile())
	require.NoError(t, err)

	voices := m.Voices()
	require.Contains(t, voices, "Vivian")

	delete(voices, "Vivian")
	voices["Impostor"] = config.VoiceConfig{}

	assert.Contains(t, m.Voices(), "Vivian")
	assert.NotContains(t, m.Voices(), "Impostor")
}

func TestManager_LoadTokenizerCached(t *testing.T) {
	loader := new(MockLoader)
	tok := new(MockTokenizer)
	loader.On("LoadTokenizer", mock.Anything, "acme/tokenizer", mock.Anything).Return(tok, nil).Once()

	m, err := NewManager(testConfig(), loader, cpuProfile())
	require.NoError(t, err)

	t1, err := m.LoadTokenizer(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "acme/tokenizer", t1.ID())

	t2, err := m.LoadTokenizer(context.Background(), false)
	require.NoError(t, err)
	assert.Same(t, t1, t2)

	loader.AssertExpectations(t)
}

func TestManager_TokenizerSurvivesProfileChange(t *testing.T) {
	loader := new(MockLoader)
	tok := new(MockTokenizer)
	loader.On("LoadTokenizer", mock.Anything, "acme/tokenizer", mock.Anything).Return(tok, nil).Once()

	m, err := NewManager(testConfig(), loader, cpuProfile())
	require.NoError(t, err)

	_, err = m.LoadTokenizer(context.Background(), false)
	require.NoError(t, err)

	require.NoError(t, m.SetProfile("large"))
	assert.True(t, m.Info().TokenizerLoaded)
	tok.AssertNotCalled(t, "Release")
}

func TestManager_Prewarm(t *testing.T) {
	loader := &slowLoader{}
	m, err := NewManager(testConfig(), loader, cpuProfile())
	require.NoError(t, err)

	m.Prewarm(context.Background())

	info := m.Info()
	assert.Equal(t, []Role{RoleCustomVoice}, info.LoadedRoles)
	assert.True(t, info.TokenizerLoaded)
}

func TestManager_PrewarmDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Models.Prewarm.Enabled = false

	loader := &slowLoader{}
	m, err := NewManager(cfg, loader, cpuProfile())
	require.NoError(t, err)

	m.Prewarm(context.Background())
	assert.Equal(t, int32(0), loader.loads.Load())
}

func TestManager_Info(t *testing.T) {
	loader := new(MockLoader)
	mod := new(MockModel)
	loader.On("LoadModel", mock.Anything, "acme/small-custom", mock.Anything).Return(mod, nil).Once()

	m, err := NewManager(testConfig(), loader, cpuProfile())
	require.NoError(t, err)

	_, err = m.Load(context.Background(), RoleCustomVoice, false)
	require.NoError(t, err)

	info := m.Info()
	assert.Equal(t, []Role{RoleCustomVoice}, info.LoadedRoles)
	assert.Equal(t, "small", info.ActiveProfile)
	assert.Equal(t, []string{"large", "small"}, info.AvailableProfiles)
	assert.Equal(t, []Role{RoleCustomVoice, RoleVoiceDesign}, info.AvailableRoles)
	assert.Equal(t, "cpu", info.Device)
	assert.Equal(t, device.PrecisionFull, info.Precision)
	assert.Equal(t, []string{"Vivian"}, info.Voices)
	assert.Equal(t, []string{"Chinese", "English"}, info.SupportedLangs)
}

func TestNewManager_ProfileEnvOverride(t *testing.T) {
	t.Setenv("RESONA_MODEL_PROFILE", "large")

	m, err := NewManager(testConfig(), new(MockLoader), cpuProfile())
	require.NoError(t, err)
	assert.Equal(t, "large", m.ActiveProfile())
}

func TestNewManager_UnknownDefaultProfile(t *testing.T) {
	cfg := testConfig()
	cfg.Models.DefaultProfile = "missing"

	_, err := NewManager(cfg, new(MockLoader), cpuProfile())
	assert.ErrorIs(t, err, ErrUnknownProfile)
}

func TestParseRole(t *testing.T) {
	for _, role := range Roles() {
		got, err := ParseRole(string(role))
		require.NoError(t, err)
		assert.Equal(t, role, got)
	}

	_, err := ParseRole("narrator")
	assert.ErrorIs(t, err, ErrUnknownRole)
}
