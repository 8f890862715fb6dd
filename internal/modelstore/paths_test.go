package modelstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestMissingModelFilesReportsAbsentOnly(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "vocab.txt"))
	touch(t, filepath.Join(dir, "nemo128.onnx"))

	missing := missingModelFiles(dir)
	assert.NotContains(t, missing, "vocab.txt")
	assert.NotContains(t, missing, "nemo128.onnx")
	assert.Contains(t, missing, "encoder-model.onnx")
	assert.Contains(t, missing, "decoder_joint-model.onnx")
}

func TestMissingModelFilesEmptyWhenComplete(t *testing.T) {
	dir := t.TempDir()
	for _, f := range modelFiles {
		touch(t, filepath.Join(dir, f))
	}
	assert.Empty(t, missingModelFiles(dir))
}

func TestNewestSnapshotPicksMostRecentlyModified(t *testing.T) {
	root := t.TempDir()
	older := filepath.Join(root, "snapshots", "aaa")
	newer := filepath.Join(root, "snapshots", "bbb")
	require.NoError(t, os.MkdirAll(older, 0o755))
	require.NoError(t, os.MkdirAll(newer, 0o755))

	now := time.Now()
	require.NoError(t, os.Chtimes(older, now.Add(-time.Hour), now.Add(-time.Hour)))
	require.NoError(t, os.Chtimes(newer, now, now))

	got, ok := newestSnapshot(root)
	require.True(t, ok)
	assert.Equal(t, newer, got)
}

func TestNewestSnapshotFalseWhenNoSnapshotsDir(t *testing.T) {
	root := t.TempDir()
	_, ok := newestSnapshot(root)
	assert.False(t, ok)
}

func TestFallbackModelRootEndsWithHubLayout(t *testing.T) {
	root := FallbackModelRoot()
	assert.Contains(t, root, filepath.Join("huggingface", "hub", "models--istupakov--parakeet-tdt-0.6b-v3-onnx"))
}

func TestResolveModelDirReturnsCompleteSnapshotWithoutDownloader(t *testing.T) {
	root := t.TempDir()
	snap := filepath.Join(root, "snapshots", "main")
	for _, f := range modelFiles {
		touch(t, filepath.Join(snap, f))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(root, "refs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "refs", "main"), []byte("main"), 0o644))

	got, err := ResolveModelDir(root, nil)
	require.NoError(t, err)
	assert.Equal(t, snap, got)
}

func TestResolveModelDirErrorsWhenIncompleteAndNoDownloader(t *testing.T) {
	root := t.TempDir()
	snap := filepath.Join(root, "snapshots", "main")
	touch(t, filepath.Join(snap, "vocab.txt"))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "refs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "refs", "main"), []byte("main"), 0o644))

	_, err := ResolveModelDir(root, nil)
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestResolveModelDirErrorsWhenNoSnapshotsAndNoDownloader(t *testing.T) {
	root := t.TempDir()
	_, err := ResolveModelDir(root, nil)
	assert.ErrorIs(t, err, ErrNoSnapshot)
}
