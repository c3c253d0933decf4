// Package local_test tests the local filesystem object store.
package local_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/registry-crawler/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		store, err := local.New(local.Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "images", "nested")
		_, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		assert.DirExists(t, dir)
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})

	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "testfile")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		assert.Error(t, err)
	})

	t.Run("BaseDirNotWritable", func(t *testing.T) {
		if os.Geteuid() == 0 {
			t.Skip("root ignores directory permissions")
		}
		tempDir := t.TempDir()
		// #nosec G302 -- directory permissions adjusted intentionally for test coverage.
		require.NoError(t, os.Chmod(tempDir, 0o500))
		_, err := local.New(local.Config{BaseDir: tempDir})
		assert.Error(t, err)
		// #nosec G302 -- reverting permissions to allow cleanup in the test environment.
		require.NoError(t, os.Chmod(tempDir, 0o700))
	})
}

func TestCreate(t *testing.T) {
	tempDir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: tempDir})
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("NestedKey", func(t *testing.T) {
		key := "3/1001/photo.jpg"
		w, err := store.Create(ctx, key)
		require.NoError(t, err)
		_, err = io.Copy(w, strings.NewReader("jpeg bytes"))
		require.NoError(t, err)
		require.NoError(t, w.Close())

		// #nosec G304 -- test reads from the controlled temp directory.
		got, err := os.ReadFile(filepath.Join(tempDir, "3", "1001", "photo.jpg"))
		require.NoError(t, err)
		assert.Equal(t, "jpeg bytes", string(got))
		assert.Equal(t, "file://"+filepath.Join(tempDir, "3", "1001", "photo.jpg"), store.URI(key))
	})

	t.Run("Overwrites", func(t *testing.T) {
		key := "3/1002/photo.jpg"
		for _, content := range []string{"first and longer", "second"} {
			w, err := store.Create(ctx, key)
			require.NoError(t, err)
			_, err = w.Write([]byte(content))
			require.NoError(t, err)
			require.NoError(t, w.Close())
		}
		// #nosec G304 -- test reads from the controlled temp directory.
		got, err := os.ReadFile(filepath.Join(tempDir, "3", "1002", "photo.jpg"))
		require.NoError(t, err)
		assert.Equal(t, "second", string(got))
	})

	t.Run("EmptyKey", func(t *testing.T) {
		_, err := store.Create(ctx, "")
		assert.Error(t, err)
	})

	t.Run("PathTraversal", func(t *testing.T) {
		_, err := store.Create(ctx, "../escape.jpg")
		assert.ErrorContains(t, err, "path traversal")
	})
}

func TestCreateAbort(t *testing.T) {
	tempDir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: tempDir})
	require.NoError(t, err)
	ctx := context.Background()
	target := filepath.Join(tempDir, "3", "1003", "photo.jpg")

	t.Run("NothingPublished", func(t *testing.T) {
		w, err := store.Create(ctx, "3/1003/photo.jpg")
		require.NoError(t, err)
		_, err = w.Write([]byte("partial"))
		require.NoError(t, err)

		_, ok, err := store.Size(ctx, "3/1003/photo.jpg")
		require.NoError(t, err)
		assert.False(t, ok, "object is invisible until Close")

		require.NoError(t, w.Abort())
		require.NoError(t, w.Close(), "Close after Abort is a no-op")
		assert.NoFileExists(t, target)
		entries, err := os.ReadDir(filepath.Dir(target))
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("PreviousObjectKept", func(t *testing.T) {
		w, err := store.Create(ctx, "3/1003/photo.jpg")
		require.NoError(t, err)
		_, err = w.Write([]byte("complete"))
		require.NoError(t, err)
		require.NoError(t, w.Close())
		require.NoError(t, w.Abort(), "Abort after Close is a no-op")

		w, err = store.Create(ctx, "3/1003/photo.jpg")
		require.NoError(t, err)
		_, err = w.Write([]byte("trunc"))
		require.NoError(t, err)
		require.NoError(t, w.Abort())

		// #nosec G304 -- test reads from the controlled temp directory.
		got, err := os.ReadFile(target)
		require.NoError(t, err)
		assert.Equal(t, "complete", string(got))
		entries, err := os.ReadDir(filepath.Dir(target))
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})
}

func TestSize(t *testing.T) {
	tempDir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: tempDir})
	require.NoError(t, err)
	ctx := context.Background()

	_, ok, err := store.Size(ctx, "1/2/missing.jpg")
	require.NoError(t, err)
	assert.False(t, ok)

	w, err := store.Create(ctx, "1/2/present.jpg")
	require.NoError(t, err)
	_, err = w.Write([]byte("12345"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	size, ok, err := store.Size(ctx, "1/2/present.jpg")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.EqualValues(t, 5, size)

	_, _, err = store.Size(ctx, "1/2")
	assert.Error(t, err)
}
