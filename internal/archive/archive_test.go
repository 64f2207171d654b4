package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/joshp123/catgenie/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	data map[string][]byte
}

func (m *memoryStore) Load(_ context.Context, key string) ([]byte, error) {
	if data, ok := m.data[key]; ok {
		return data, nil
	}
	return nil, ErrNotFound
}

func (m *memoryStore) Save(_ context.Context, key string, data []byte) error {
	if m.data == nil {
		m.data = make(map[string][]byte)
	}
	m.data[key] = data
	return nil
}

func TestArchiveRoundTrip(t *testing.T) {
	store := &memoryStore{}
	a := New(store, "/snapshots/")

	type snapshot struct {
		State int `json:"state"`
	}
	require.NoError(t, a.SaveLatest(context.Background(), "dev-1", snapshot{State: 3}))
	assert.Contains(t, store.data, "snapshots/dev-1/latest.json")

	var got snapshot
	require.NoError(t, a.LoadLatest(context.Background(), "dev-1", &got))
	assert.Equal(t, 3, got.State)

	err := a.LoadLatest(context.Background(), "missing", &got)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDefaultPrefix(t *testing.T) {
	a := New(&memoryStore{}, "")
	assert.Equal(t, config.DefaultArchivePrefix+"/x/latest.json", a.Key("x"))
}

func TestParseEndpoint(t *testing.T) {
	host, secure, err := parseEndpoint("http://minio:9000")
	require.NoError(t, err)
	assert.Equal(t, "minio:9000", host)
	assert.False(t, secure)

	host, secure, err = parseEndpoint("s3.example.com")
	require.NoError(t, err)
	assert.Equal(t, "s3.example.com", host)
	assert.True(t, secure)

	_, _, err = parseEndpoint("https://")
	assert.Error(t, err)
}

func TestNewS3StoreReadsKeys(t *testing.T) {
	dir := t.TempDir()
	access := filepath.Join(dir, "access")
	secret := filepath.Join(dir, "secret")
	require.NoError(t, os.WriteFile(access, []byte("AKIA\n"), 0o600))
	require.NoError(t, os.WriteFile(secret, []byte("s3cr3t\n"), 0o600))

	store, err := NewS3Store(&config.ArchiveConfig{
		Endpoint:      "http://127.0.0.1:9000",
		Bucket:        "catgenie",
		AccessKeyFile: access,
		SecretKeyFile: secret,
	})
	require.NoError(t, err)
	assert.Equal(t, "catgenie", store.bucket)

	_, err = NewS3Store(&config.ArchiveConfig{Endpoint: "x", Bucket: "b", AccessKeyFile: filepath.Join(dir, "nope"), SecretKeyFile: secret})
	assert.Error(t, err)
	_, err = NewS3Store(nil)
	assert.Error(t, err)
}
