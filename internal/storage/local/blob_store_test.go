package local_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/difranardo/vacancies-scrapper/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("creates missing dir", func(t *testing.T) {
		t.Parallel()
		dir := filepath.Join(t.TempDir(), "nested", "snapshots")
		store, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		require.NotNil(t, store)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		require.True(t, info.IsDir())
	})

	t.Run("missing base dir", func(t *testing.T) {
		t.Parallel()
		_, err := local.New(local.Config{})
		require.Error(t, err)
	})

	t.Run("base dir is a file", func(t *testing.T) {
		t.Parallel()
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		require.Error(t, err)
	})
}

func TestPutObject(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir, Prefix: "/diag/"})
	require.NoError(t, err)

	markup := "<html><body>listing</body></html>"
	uri, err := store.PutObject(context.Background(), "snapshots/bumeran/job-1/listing.html",
		"text/html", strings.NewReader(markup))
	require.NoError(t, err)

	want := filepath.Join(dir, "diag", "snapshots", "bumeran", "job-1", "listing.html")
	require.Equal(t, "file://"+filepath.ToSlash(want), uri)
	got, err := os.ReadFile(want)
	require.NoError(t, err)
	require.Equal(t, markup, string(got))
}

func TestPutObjectRejectsBadPaths(t *testing.T) {
	t.Parallel()

	store, err := local.New(local.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), " ", "text/html", strings.NewReader("x"))
	require.Error(t, err)
	_, err = store.PutObject(context.Background(), "../../escape.html", "text/html", strings.NewReader("x"))
	require.ErrorContains(t, err, "path traversal")
}
