package runner

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resona-team/resona/internal/audio"
	"github.com/resona-team/resona/internal/config"
)

func fakeRunnerBinary(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "resona-runner")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755))
	return path
}

func TestNewLoader_MissingBinary(t *testing.T) {
	_, err := NewLoader(filepath.Join(t.TempDir(), "nope"), t.TempDir(), config.DownloadConfig{}, audio.NewCodecWithCapabilities(audio.Capabilities{}))
	assert.Error(t, err)
}

func TestNewLoader_AllocatesSequentialPorts(t *testing.T) {
	l, err := NewLoader(fakeRunnerBinary(t), t.TempDir(), config.DownloadConfig{}, audio.NewCodecWithCapabilities(audio.Capabilities{}))
	require.NoError(t, err)

	first := l.allocPort()
	second := l.allocPort()
	assert.Equal(t, basePort, first)
	assert.Equal(t, basePort+1, second)
}

func TestServerName(t *testing.T) {
	assert.Equal(t, "Qwen_Qwen3-TTS-12Hz-0.6B-Base", serverName("Qwen/Qwen3-TTS-12Hz-0.6B-Base"))
	assert.Equal(t, "plain", serverName("plain"))
}

func TestServerKey(t *testing.T) {
	assert.Equal(t, "model-47100", serverKey("model", 47100))
}

func TestSynthesisPayload_OmitsEmptyFields(t *testing.T) {
	body, err := json.Marshal(synthesisPayload{Text: "hi"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"text":"hi"}`, string(body))

	body, err = json.Marshal(synthesisPayload{
		Text:           "hi",
		Voice:          "Vivian",
		Speed:          1.2,
		ReferenceAudio: "UklGRg==",
		XVectorOnly:    true,
	})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "Vivian", decoded["voice"])
	assert.Equal(t, 1.2, decoded["speed"])
	assert.Equal(t, true, decoded["x_vector_only"])
}

func TestServerManager_StopUnknownServer(t *testing.T) {
	sm := NewServerManager()
	assert.Error(t, sm.StopServer("ghost", 1234))
}
