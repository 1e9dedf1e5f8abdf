package gcs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseURI(t *testing.T) {
	t.Parallel()

	bucket, object, err := ParseURI("gs://crawl-config/lists/allow.txt")
	require.NoError(t, err)
	require.Equal(t, "crawl-config", bucket)
	require.Equal(t, "lists/allow.txt", object)

	for _, bad := range []string{"s3://b/o", "gs://bucket", "gs://bucket/", "gs:///object"} {
		_, _, err := ParseURI(bad)
		require.Error(t, err, bad)
	}
}

func TestNewRequiresClient(t *testing.T) {
	t.Parallel()

	_, err := New(nil)
	require.ErrorContains(t, err, "storage client is required")
}
