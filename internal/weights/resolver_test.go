package weights

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSource struct {
	downloads []string
	fail      bool
}

func (s *recordingSource) Download(_ context.Context, asset Asset, dst string) error {
	s.downloads = append(s.downloads, asset.File)
	if s.fail {
		return os.ErrDeadlineExceeded
	}
	return os.WriteFile(dst, []byte("weights"), 0o644)
}

func TestResolveDownloadsOnCacheMiss(t *testing.T) {
	source := &recordingSource{}
	resolver := NewResolver(t.TempDir(), source)

	paths, err := resolver.Resolve(context.Background(), "yolov8n")
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Equal(t, []string{"yolov8n.onnx"}, source.downloads)

	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Equal(t, "weights", string(data))
}

func TestResolveUsesCache(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "yolov8n.onnx"), []byte("cached"), 0o644))

	source := &recordingSource{}
	resolver := NewResolver(dir, source)

	paths, err := resolver.Resolve(context.Background(), "yolov8n")
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.Empty(t, source.downloads, "cached weights must not be re-downloaded")
}

func TestResolveMultiAssetVariant(t *testing.T) {
	source := &recordingSource{}
	resolver := NewResolver(t.TempDir(), source)

	paths, err := resolver.Resolve(context.Background(), "mobile-sam")
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Contains(t, paths[0], "encoder")
	assert.Contains(t, paths[1], "decoder")
}

func TestResolveUnknownVariant(t *testing.T) {
	resolver := NewResolver(t.TempDir(), &recordingSource{})

	_, err := resolver.Resolve(context.Background(), "not-a-model")
	assert.Error(t, err)
}

func TestResolveFailedDownloadLeavesNoPartial(t *testing.T) {
	dir := t.TempDir()
	resolver := NewResolver(dir, &recordingSource{fail: true})

	_, err := resolver.Resolve(context.Background(), "u2net")
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "failed download must not leave files behind")
}
