package gcs

import (
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/require"
)

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)
	_, err = New(&storage.Client{}, Config{})
	require.Error(t, err)
}

func TestObjectName(t *testing.T) {
	t.Parallel()

	plain := &BlobStore{bucket: "b"}
	name, err := plain.objectName("/snapshots/zonajobs/job-1/listing.html")
	require.NoError(t, err)
	require.Equal(t, "snapshots/zonajobs/job-1/listing.html", name)

	prefixed := &BlobStore{bucket: "b", prefix: "diag"}
	name, err = prefixed.objectName("snapshots/x.html")
	require.NoError(t, err)
	require.Equal(t, "diag/snapshots/x.html", name)

	_, err = plain.objectName("  ")
	require.Error(t, err)
}
