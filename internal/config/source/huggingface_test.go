package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resona-team/resona/internal/config"
)

func TestDownload_RejectsEmptyRepo(t *testing.T) {
	d := &HuggingFaceDownloader{}

	_, _, err := d.Download(context.Background(), "  ", config.DownloadConfig{}, t.TempDir())
	assert.Error(t, err)
}

func TestDownload_UsesCacheOnMarkerMatch(t *testing.T) {
	d := &HuggingFaceDownloader{}
	dir := t.TempDir()

	repoDir := filepath.Join(dir, "acme", "model")
	require.NoError(t, os.MkdirAll(repoDir, 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(repoDir, markerFilename),
		[]byte(d.markerContent("acme/model")), 0o644,
	))

	path, cached, err := d.Download(context.Background(), "acme/model", config.DownloadConfig{}, dir)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, repoDir, path)
}

func TestShouldRedownload(t *testing.T) {
	d := &HuggingFaceDownloader{}
	dir := t.TempDir()

	marker := filepath.Join(dir, markerFilename)
	assert.True(t, d.shouldRedownload(marker, d.markerContent("acme/model")))

	require.NoError(t, os.WriteFile(marker, []byte(d.markerContent("acme/model")), 0o644))
	assert.False(t, d.shouldRedownload(marker, d.markerContent("acme/model")))
	assert.True(t, d.shouldRedownload(marker, d.markerContent("acme/other")))
}

func TestEnsureModelsDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "models", "nested")
	require.NoError(t, EnsureModelsDirectory(dir))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
